package sitelist

import (
	"strings"
	"unicode"

	"github.com/haukened/distraction-block/internal/blocker/common/utils"
)

// Names every hosts file carries that are never worth blocking.
var loopbackNames = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"local":                 {},
	"broadcasthost":         {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"ip6-localnet":          {},
	"ip6-mcastprefix":       {},
	"ip6-allnodes":          {},
	"ip6-allrouters":        {},
	"ip6-allhosts":          {},
	"0.0.0.0":               {},
}

// isValidFQDN reports whether name looks like a registrable host:
//   - at most 255 characters
//   - at least two labels
//   - every label 1..63 characters of letters, digits, '-' or '_'
//   - the first label starts with a letter or digit
func isValidFQDN(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
		for _, r := range label {
			if !isAlphaNumeric(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	return isAlphaNumeric([]rune(labels[0])[0])
}

// normalizeEntry strips a "*." or "." marker and canonicalizes. Every block
// list entry already covers its subdomains, so the marker adds nothing.
func normalizeEntry(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.StripWWW(utils.CanonicalHost(name))
}

func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func stripBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports blank lines and whole-line comments.
func classifyLine(line string) (empty, comment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}
