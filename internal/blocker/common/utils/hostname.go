package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

const wwwPrefix = "www."

// CanonicalHost returns a hostname in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dots
func CanonicalHost(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// StripWWW lowercases name and removes a single leading "www." label.
func StripWWW(name string) string {
	return strings.TrimPrefix(strings.ToLower(name), wwwPrefix)
}

// ApexDomain returns the registrable domain (eTLD+1) for name, or the
// canonical name itself when the public suffix list cannot place it.
func ApexDomain(name string) string {
	name = CanonicalHost(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}
