// Package semantic turns extracted DOM snapshots into deterministic semantic
// models: classified elements, stable selectors, and inferred flows.
package semantic

import "strings"

// Element roles produced by the classifier.
const (
	RoleLoginButton   = "login_button"
	RoleUsernameInput = "username_input"
	RolePasswordInput = "password_input"
	RoleButton        = "button"
	RoleLink          = "link"
	RoleInput         = "input"
	RoleGeneric       = "generic"
)

// Classification is a role with the rule's confidence.
type Classification struct {
	Role       string
	Confidence float64
}

// Classify maps a labeled UI element to a role. Rules are evaluated
// top to bottom, first match wins; label matching is case-insensitive
// substring. The function is referentially transparent: no I/O, no
// randomness, no shared state.
func Classify(label, tagName string) Classification {
	text := strings.ToLower(label)
	tag := strings.ToLower(tagName)

	switch {
	case strings.Contains(text, "login") || strings.Contains(text, "sign in"):
		return Classification{Role: RoleLoginButton, Confidence: 0.95}
	case strings.Contains(text, "username") || strings.Contains(text, "user name"):
		return Classification{Role: RoleUsernameInput, Confidence: 0.95}
	case strings.Contains(text, "password"):
		return Classification{Role: RolePasswordInput, Confidence: 0.95}
	case tag == "button":
		return Classification{Role: RoleButton, Confidence: 0.8}
	case tag == "a" || tag == "link":
		return Classification{Role: RoleLink, Confidence: 0.8}
	case tag == "input":
		return Classification{Role: RoleInput, Confidence: 0.7}
	default:
		return Classification{Role: RoleGeneric, Confidence: 0.5}
	}
}
