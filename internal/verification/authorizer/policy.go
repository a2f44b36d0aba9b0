package authorizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"eudi-storefront/internal/verification/models"
)

type policyEnvelope struct {
	Data          []map[string]any `json:"data"`
	OverallStatus string           `json:"overallStatus"`
	OverallSnake  string           `json:"overall_status"`
}

// ParsePolicy turns a raw policy-response body into a VerificationPolicy.
// When the body carries no overall status it is derived from the checks:
// any failing check fails the policy, no checks leaves it unknown.
func ParsePolicy(raw json.RawMessage) (*models.VerificationPolicy, error) {
	var env policyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		var bare []map[string]any
		if err2 := json.Unmarshal(raw, &bare); err2 != nil {
			return nil, newUpstreamError(OpPolicy, ErrorBadData, 0, "policy response is not a check list", err)
		}
		env.Data = bare
	}

	policy := &models.VerificationPolicy{Checks: make([]models.PolicyCheck, 0, len(env.Data))}
	for i, entry := range env.Data {
		policy.Checks = append(policy.Checks, parseCheck(i, entry))
	}

	overall := env.OverallStatus
	if overall == "" {
		overall = env.OverallSnake
	}
	switch strings.ToLower(overall) {
	case "pass", "passed", "success":
		policy.Overall = models.PolicyPass
	case "fail", "failed", "failure":
		policy.Overall = models.PolicyFail
	case "":
		policy.Overall = derivedOverall(policy.Checks)
	default:
		policy.Overall = models.PolicyUnknown
	}
	return policy, nil
}

func derivedOverall(checks []models.PolicyCheck) models.PolicyOutcome {
	if len(checks) == 0 {
		return models.PolicyUnknown
	}
	for _, c := range checks {
		if !c.Passed() {
			return models.PolicyFail
		}
	}
	return models.PolicyPass
}

func parseCheck(idx int, entry map[string]any) models.PolicyCheck {
	c := models.PolicyCheck{
		Name:    firstString(entry, "name", "check", "policy", "id", "type"),
		Status:  firstString(entry, "status", "result", "outcome"),
		Message: firstString(entry, "message", "error", "reason"),
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("check_%d", idx)
	}
	if c.Status == "" {
		for _, key := range []string{"passed", "valid", "success"} {
			if b, ok := entry[key].(bool); ok {
				if b {
					c.Status = "pass"
				} else {
					c.Status = "fail"
				}
				break
			}
		}
	}
	if c.Status == "" {
		c.Status = "unknown"
	}
	switch p := entry["path"].(type) {
	case string:
		if p != "" {
			c.Path = []string{p}
		}
	case []any:
		for _, seg := range p {
			c.Path = append(c.Path, fmt.Sprint(seg))
		}
	}
	return c
}

func firstString(entry map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := entry[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
