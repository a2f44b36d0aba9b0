package claims

import (
	"sort"
	"strings"
)

// shape is the wire layout of a disclosed-credential payload, decided once.
type shape int

const (
	shapeFallback        shape = iota // the whole payload is one credential's claims
	shapeCredentialArray              // [{id, claims}] or {credentials: [{id, claims}]}
	shapeKeyedMap                     // {<credentialId>: {claims...}}
)

func (s shape) String() string {
	switch s {
	case shapeCredentialArray:
		return "credential_array"
	case shapeKeyedMap:
		return "keyed_map"
	default:
		return "fallback"
	}
}

// credential is one credential's claims after unwrapping.
type credential struct {
	id     string
	claims map[string]any
}

// payload is the classified input.
type payload struct {
	shape       shape
	credentials []credential
}

// classify decides the shape of v. Keys are visited in sorted order so the
// merge in Normalize is deterministic.
func classify(v any) payload {
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["vp_token"]; ok && len(m) <= 2 {
			return classify(inner)
		}
		if arr, ok := m["credentials"].([]any); ok {
			if creds, ok := credentialArray(arr); ok {
				return payload{shape: shapeCredentialArray, credentials: creds}
			}
		}
		if keyed, ok := m["credentials"].(map[string]any); ok && len(m) == 1 {
			if creds, ok := keyedMap(keyed); ok {
				return payload{shape: shapeKeyedMap, credentials: creds}
			}
		}
		if creds, ok := keyedMap(m); ok {
			return payload{shape: shapeKeyedMap, credentials: creds}
		}
		return payload{shape: shapeFallback, credentials: []credential{{claims: flattenNamespaces(m)}}}
	}
	if arr, ok := v.([]any); ok {
		if creds, ok := credentialArray(arr); ok {
			return payload{shape: shapeCredentialArray, credentials: creds}
		}
	}
	return payload{shape: shapeFallback}
}

func credentialArray(arr []any) ([]credential, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	creds := make([]credential, 0, len(arr))
	for _, item := range arr {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		claims, ok := entry["claims"].(map[string]any)
		if !ok {
			return nil, false
		}
		idStr, _ := entry["id"].(string)
		creds = append(creds, credential{id: idStr, claims: flattenNamespaces(claims)})
	}
	return creds, true
}

// keyedMap accepts m when every value is an object and no key is itself a
// known claim name.
func keyedMap(m map[string]any) ([]credential, bool) {
	if len(m) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if _, ok := v.(map[string]any); !ok {
			return nil, false
		}
		if isKnownClaim(k) || isNamespace(k) {
			return nil, false
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	creds := make([]credential, 0, len(keys))
	for _, k := range keys {
		inner := m[k].(map[string]any)
		if c, ok := inner["claims"].(map[string]any); ok {
			inner = c
		}
		creds = append(creds, credential{id: k, claims: flattenNamespaces(inner)})
	}
	return creds, true
}

// flattenNamespaces lifts mDoc namespace objects ("org.iso.18013.5.1": {...})
// into the top level. Top-level keys win over namespaced ones.
func flattenNamespaces(claims map[string]any) map[string]any {
	var nsKeys []string
	for k, v := range claims {
		if _, ok := v.(map[string]any); ok && isNamespace(k) {
			nsKeys = append(nsKeys, k)
		}
	}
	if len(nsKeys) == 0 {
		return claims
	}
	sort.Strings(nsKeys)

	out := make(map[string]any, len(claims))
	for k, v := range claims {
		if !isNamespace(k) {
			out[k] = v
		}
	}
	for _, ns := range nsKeys {
		for k, v := range claims[ns].(map[string]any) {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}

// isNamespace matches reverse-domain mDoc namespaces such as
// "org.iso.18013.5.1" or "eu.europa.ec.eudi.pid.1".
func isNamespace(k string) bool {
	return strings.Count(k, ".") >= 2
}
