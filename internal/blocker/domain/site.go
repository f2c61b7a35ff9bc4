package domain

import (
	"errors"
	"strings"

	"github.com/samber/lo"
)

// InvalidDomainMessage is the alert shown when input lacks a dot.
const InvalidDomainMessage = "Please enter a valid domain (e.g., facebook.com)"

var (
	ErrEmptySite     = errors.New("site must not be empty")
	ErrInvalidDomain = errors.New("invalid domain: must contain a dot")
)

var schemePrefixes = []string{"https://", "http://"}

// NormalizeSite turns user input into a block list entry. The scheme and a
// leading "www." are removed, anything after the first "/" is dropped and the
// result is lowercased. The remainder must contain at least one dot.
func NormalizeSite(input string) (string, error) {
	site := strings.TrimSpace(input)
	if site == "" {
		return "", ErrEmptySite
	}

	for _, p := range schemePrefixes {
		if hasPrefixFold(site, p) {
			site = site[len(p):]
			break
		}
	}
	if hasPrefixFold(site, "www.") {
		site = site[len("www."):]
	}
	if i := strings.IndexByte(site, '/'); i >= 0 {
		site = site[:i]
	}
	site = strings.ToLower(site)

	if !strings.Contains(site, ".") {
		return "", ErrInvalidDomain
	}
	return site, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// AddSite appends site unless an identical entry exists. The bool reports
// whether the list changed.
func AddSite(sites []string, site string) ([]string, bool) {
	if lo.Contains(sites, site) {
		return sites, false
	}
	return append(sites, site), true
}

// RemoveSite drops site from the list.
func RemoveSite(sites []string, site string) ([]string, bool) {
	if !lo.Contains(sites, site) {
		return sites, false
	}
	return lo.Without(sites, site), true
}

// RemoveSiteAt drops the entry at index i.
func RemoveSiteAt(sites []string, i int) ([]string, bool) {
	if i < 0 || i >= len(sites) {
		return sites, false
	}
	out := make([]string, 0, len(sites)-1)
	out = append(out, sites[:i]...)
	return append(out, sites[i+1:]...), true
}
