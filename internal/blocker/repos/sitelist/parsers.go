// Package sitelist reads block lists from files so they can be merged into
// the settings record. Two layouts are understood: plain newline-delimited
// domains and /etc/hosts style files.
package sitelist

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
)

// Format selects a parser.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatPlain Format = "plain"
	FormatHosts Format = "hosts"
)

// ParseFormat accepts the CLI spelling of a format; "" means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatPlain, FormatHosts:
		return f, nil
	default:
		return "", fmt.Errorf("unknown list format %q (want plain, hosts or auto)", s)
	}
}

// ReadFile opens path and parses it with format.
func ReadFile(path string, format Format, logger log.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list: %w", err)
	}
	defer f.Close()
	return Parse(f, format, path, logger)
}

// Parse dispatches on format. Auto looks at the first meaningful line: a
// leading IP address means a hosts file.
func Parse(r io.Reader, format Format, source string, logger log.Logger) ([]string, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if format == FormatAuto {
		br := bufio.NewReader(r)
		format = sniff(br)
		r = br
	}
	switch format {
	case FormatHosts:
		return ParseHostsFile(r, source, logger)
	default:
		return ParsePlainList(r, source, logger)
	}
}

func sniff(br *bufio.Reader) Format {
	const window = 4096
	head, _ := br.Peek(window)
	for _, line := range strings.Split(string(head), "\n") {
		if empty, comment := classifyLine(stripBOM(line)); empty || comment {
			continue
		}
		fields := strings.Fields(stripInlineComment(stripBOM(line)))
		if len(fields) >= 2 && net.ParseIP(fields[0]) != nil {
			return FormatHosts
		}
		return FormatPlain
	}
	return FormatPlain
}

// ParsePlainList reads one domain per line.
//
// Behavior:
//   - '#' starts a comment, whole-line or inline
//   - a leading "*." or "." is dropped
//   - "www." is stripped and names are lowercased without trailing dots
//   - invalid names are skipped, duplicates keep their first position
func ParsePlainList(r io.Reader, source string, logger log.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	out := make([]string, 0, 64)

	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripBOM(scanner.Text())
		if empty, comment := classifyLine(line); empty || comment {
			continue
		}

		raw := strings.TrimSpace(stripInlineComment(line))
		name := normalizeEntry(raw)
		if !isValidFQDN(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "skip_invalid_fqdn")
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}

// ParseHostsFile extracts hostnames from /etc/hosts style lines. The address
// column is ignored; wildcard tokens and loopback aliases are skipped.
func ParseHostsFile(r io.Reader, source string, logger log.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	out := make([]string, 0, 256)

	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripBOM(scanner.Text())
		if empty, comment := classifyLine(line); empty || comment {
			continue
		}

		fields := strings.Fields(stripInlineComment(line))
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostnames")
			continue
		}
		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_invalid_token")
				continue
			}
			name := normalizeEntry(raw)
			if _, loopback := loopbackNames[name]; loopback || !isValidFQDN(name) {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_hosts_done")
	return out, nil
}
