// Package rules decides whether a URL's host is covered by the block list.
//
// A host H is blocked by entry E when, after lowercasing and removing one
// leading "www." from both, H == E or H ends with "." + E.
package rules

import (
	"errors"
	"net/url"
	"strings"

	"github.com/haukened/distraction-block/internal/blocker/common/utils"
)

var (
	// ErrMalformedURL is returned for input that has no parseable host.
	ErrMalformedURL = errors.New("malformed url")
	// ErrSelfURL marks URLs that belong to the blocker's own pages.
	ErrSelfURL = errors.New("url belongs to the blocker")
)

// ParseHost extracts the comparable hostname from rawURL.
// URLs starting with selfPrefix are refused with ErrSelfURL.
func ParseHost(rawURL, selfPrefix string) (string, error) {
	if selfPrefix != "" && strings.HasPrefix(rawURL, selfPrefix) {
		return "", ErrSelfURL
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", errors.Join(ErrMalformedURL, err)
	}
	host := NormalizeHost(u.Hostname())
	if host == "" {
		return "", ErrMalformedURL
	}
	return host, nil
}

// NormalizeHost canonicalizes a hostname and strips one leading "www.".
// List entries go through the same transformation.
func NormalizeHost(host string) string {
	return utils.StripWWW(utils.CanonicalHost(host))
}

// MatchHost reports the first entry covering host, which must already be
// normalized.
func MatchHost(host string, sites []string) (string, bool) {
	for _, site := range sites {
		entry := NormalizeHost(site)
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return entry, true
		}
	}
	return "", false
}

// ShouldBlockURL is the reference decision: malformed and self URLs never
// match.
func ShouldBlockURL(rawURL string, sites []string, selfPrefix string) bool {
	host, err := ParseHost(rawURL, selfPrefix)
	if err != nil {
		return false
	}
	_, ok := MatchHost(host, sites)
	return ok
}
