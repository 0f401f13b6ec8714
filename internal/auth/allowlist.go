package auth

import "strings"

// Allowlist restricts which emails may register through SSO. Existing users
// and linked accounts are never affected.
type Allowlist struct {
	domains map[string]struct{}
	emails  map[string]struct{}
}

// NewAllowlist builds an Allowlist. Empty lists allow everyone.
func NewAllowlist(domains, emails []string) Allowlist {
	a := Allowlist{domains: make(map[string]struct{}), emails: make(map[string]struct{})}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			a.domains[d] = struct{}{}
		}
	}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			a.emails[e] = struct{}{}
		}
	}
	return a
}

// Restricted reports whether any allowlist is configured.
func (a Allowlist) Restricted() bool {
	return len(a.domains) > 0 || len(a.emails) > 0
}

// Allows checks email against the explicit list, then its domain.
func (a Allowlist) Allows(email string) bool {
	if !a.Restricted() {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := a.emails[email]; ok {
		return true
	}
	if _, domain, ok := strings.Cut(email, "@"); ok {
		_, allowed := a.domains[domain]
		return allowed
	}
	return false
}
