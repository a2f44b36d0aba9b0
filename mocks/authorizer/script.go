package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Script decides how the mock answers for one nonce prefix.
type Script struct {
	// Statuses are returned by successive status fetches; the last one
	// repeats.
	Statuses []string `json:"statuses"`
	// Policy is "pass" or "fail".
	Policy string `json:"policy"`
	// Credentials is returned verbatim by the credentials endpoint.
	Credentials json.RawMessage `json:"credentials,omitempty"`
	// CreateStatus, when non-zero, fails authorization creation with that
	// HTTP status.
	CreateStatus int `json:"createStatus,omitempty"`
	// CreateMessage is the error message sent with CreateStatus.
	CreateMessage string `json:"createMessage,omitempty"`
}

const defaultPrefix = "default"

// DefaultScript approves on the third status fetch.
func DefaultScript() Script {
	return Script{
		Statuses:    []string{"pending", "pending", "authorized"},
		Policy:      "pass",
		Credentials: json.RawMessage(samplePID),
	}
}

const samplePID = `{"credentials":[{"id":"pid","format":"dc+sd-jwt","claims":{` +
	`"given_name":"Ana","family_name":"Rossi","birth_date":"1990-04-12",` +
	`"nationalities":["IT"],"address":{"street_address":"Via Roma 1","locality":"Milano","country":"IT"},` +
	`"age_equal_or_over":{"18":true,"21":true}}}]}`

var validStatuses = map[string]bool{
	"created": true, "pending": true, "authorized": true,
	"rejected": true, "expired": true, "error": true,
}

// Validate checks a script posted by a caller.
func (s Script) Validate() error {
	for _, st := range s.Statuses {
		if !validStatuses[st] {
			return fmt.Errorf("unknown status %q", st)
		}
	}
	if s.Policy != "" && s.Policy != "pass" && s.Policy != "fail" {
		return fmt.Errorf("policy must be pass or fail")
	}
	if len(s.Credentials) > 0 && !json.Valid(s.Credentials) {
		return fmt.Errorf("credentials must be JSON")
	}
	return nil
}

func (s Script) withDefaults() Script {
	def := DefaultScript()
	if len(s.Statuses) == 0 {
		s.Statuses = def.Statuses
	}
	if s.Policy == "" {
		s.Policy = def.Policy
	}
	if len(s.Credentials) == 0 {
		s.Credentials = def.Credentials
	}
	return s
}

// PolicyResponse renders the policy evaluation body.
func (s Script) PolicyResponse() json.RawMessage {
	if s.Policy == "fail" {
		return json.RawMessage(`{"data":[{"name":"issuer_trusted","status":"fail","message":"issuer not in trust list"},` +
			`{"name":"not_revoked","status":"pass"}],"overallStatus":"fail"}`)
	}
	return json.RawMessage(`{"data":[{"name":"issuer_trusted","status":"pass"},` +
		`{"name":"not_revoked","status":"pass"}],"overallStatus":"pass"}`)
}

// authorization is one created authorization and its progress.
type authorization struct {
	ID        string
	Nonce     string
	Mode      string
	ExpiresAt time.Time
	script    Script
	step      int
	forced    string
}

// next returns the status for this fetch and advances the script.
func (a *authorization) next() string {
	if a.forced != "" {
		return a.forced
	}
	i := a.step
	if i >= len(a.script.Statuses) {
		i = len(a.script.Statuses) - 1
	} else {
		a.step++
	}
	return a.script.Statuses[i]
}

// Registry holds scripts and authorizations.
type Registry struct {
	mu             sync.Mutex
	scripts        map[string]Script
	authorizations map[string]*authorization
	ttl            time.Duration
	now            func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		scripts:        map[string]Script{defaultPrefix: DefaultScript()},
		authorizations: make(map[string]*authorization),
		ttl:            ttl,
		now:            time.Now,
	}
}

// SetScript installs s for nonces starting with prefix. The prefix
// "default" applies when nothing longer matches.
func (r *Registry) SetScript(prefix string, s Script) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[strings.ToLower(prefix)] = s.withDefaults()
}

// DeleteScript removes prefix. Deleting the default restores DefaultScript.
func (r *Registry) DeleteScript(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix = strings.ToLower(prefix)
	if prefix == defaultPrefix {
		r.scripts[defaultPrefix] = DefaultScript()
		return
	}
	delete(r.scripts, prefix)
}

// ScriptFor picks the longest matching prefix.
func (r *Registry) ScriptFor(nonce string) Script {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scriptFor(nonce)
}

func (r *Registry) scriptFor(nonce string) Script {
	prefixes := make([]string, 0, len(r.scripts))
	for p := range r.scripts {
		if p != defaultPrefix {
			prefixes = append(prefixes, p)
		}
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, p := range prefixes {
		if strings.HasPrefix(nonce, p) {
			return r.scripts[p]
		}
	}
	return r.scripts[defaultPrefix]
}

// Create opens an authorization scripted by nonce.
func (r *Registry) Create(nonce, mode string) (*authorization, Script) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.scriptFor(nonce)
	a := &authorization{
		ID:        uuid.NewString(),
		Nonce:     nonce,
		Mode:      mode,
		ExpiresAt: r.now().Add(r.ttl),
		script:    s,
	}
	if s.CreateStatus == 0 {
		r.authorizations[a.ID] = a
	}
	return a, s
}

// Status returns the next scripted status for authzID.
func (r *Registry) Status(authzID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.authorizations[authzID]
	if !ok {
		return "", false
	}
	return a.next(), true
}

// Force pins authzID to status for every later fetch.
func (r *Registry) Force(authzID, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.authorizations[authzID]
	if !ok {
		return false
	}
	a.forced = status
	return true
}

// Script returns the script authzID was created with.
func (r *Registry) Script(authzID string) (Script, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.authorizations[authzID]
	if !ok {
		return Script{}, false
	}
	return a.script, true
}
