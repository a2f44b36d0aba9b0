package models

import "strings"

// PolicyOutcome is the overall result of the Authorizer's policy evaluation.
type PolicyOutcome string

const (
	PolicyPass    PolicyOutcome = "pass"
	PolicyFail    PolicyOutcome = "fail"
	PolicyUnknown PolicyOutcome = "unknown"
)

// PolicyCheck is one named check from the policy response.
type PolicyCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Path    []string `json:"path,omitempty"`
}

// Passed treats "pass", "passed", "success" and "ok" as passing.
func (c PolicyCheck) Passed() bool {
	switch strings.ToLower(c.Status) {
	case "pass", "passed", "success", "ok", "valid":
		return true
	}
	return false
}

// VerificationPolicy is the last fetched policy evaluation.
type VerificationPolicy struct {
	Overall PolicyOutcome `json:"overallStatus"`
	Checks  []PolicyCheck `json:"checks"`
}

// FailedChecks returns the checks that did not pass.
func (p *VerificationPolicy) FailedChecks() []PolicyCheck {
	if p == nil {
		return nil
	}
	var failed []PolicyCheck
	for _, c := range p.Checks {
		if !c.Passed() {
			failed = append(failed, c)
		}
	}
	return failed
}

// FailureSummary joins failing check names and messages for lastError.
func (p *VerificationPolicy) FailureSummary() string {
	failed := p.FailedChecks()
	if len(failed) == 0 {
		return "Policy evaluation failed"
	}
	parts := make([]string, 0, len(failed))
	for _, c := range failed {
		if c.Message != "" {
			parts = append(parts, c.Name+": "+c.Message)
		} else {
			parts = append(parts, c.Name)
		}
	}
	return "Policy evaluation failed: " + strings.Join(parts, "; ")
}
