package sitelist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
)

func TestParsePlainList(t *testing.T) {
	input := "\uFEFF# focus list\n" +
		"facebook.com\n" +
		"  *.Reddit.com.  # all of reddit\n" +
		".news.ycombinator.com\n" +
		"www.youtube.com\n" +
		"facebook.com\n" +
		"\n" +
		"localhost\n" +
		"-bad.example\n" +
		"user@example.com\n"

	got, err := ParsePlainList(strings.NewReader(input), "test", log.NewNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook.com", "reddit.com", "news.ycombinator.com", "youtube.com"}, got)
}

func TestParsePlainList_OnlyComments(t *testing.T) {
	got, err := ParsePlainList(strings.NewReader("# a\n\n   # b\n"), "test", log.NewNoopLogger())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseHostsFile(t *testing.T) {
	input := `
# comment
127.0.0.1 localhost
::1 localhost ip6-localhost ip6-loopback
0.0.0.0 example.com example.org # inline comment
0.0.0.0 *.bad.example.com .also.bad.example.com
192.168.1.1 sub.Example.com www.twitter.com
1.2.3.4 . .
255.255.255.255 broadcasthost
0.0.0.0 example.com
0.0.0.0
`
	got, err := ParseHostsFile(strings.NewReader(input), "hosts", log.NewNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "example.org", "sub.example.com", "twitter.com"}, got)
}

func TestParse_ScannerError(t *testing.T) {
	long := strings.Repeat("a", 70*1024) + ".com\n"
	_, err := ParsePlainList(strings.NewReader(long), "big", log.NewNoopLogger())
	assert.Error(t, err)
	_, err = ParseHostsFile(strings.NewReader("0.0.0.0 "+long), "big", log.NewNoopLogger())
	assert.Error(t, err)
}

func TestParse_AutoDetect(t *testing.T) {
	hosts := "# blocklist\n0.0.0.0 facebook.com\n"
	got, err := Parse(strings.NewReader(hosts), FormatAuto, "auto", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook.com"}, got)

	plain := "# blocklist\nfacebook.com\n0.0.0.0 ignored.example\n"
	got, err = Parse(strings.NewReader(plain), FormatAuto, "auto", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook.com"}, got)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatAuto, "auto": FormatAuto, "Plain": FormatPlain, "hosts": FormatHosts} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.com\nb.com\n"), 0o600))

	got, err := ReadFile(path, FormatPlain, log.NewNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "b.com"}, got)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"), FormatPlain, nil)
	assert.Error(t, err)
}

func TestIsValidFQDN(t *testing.T) {
	assert.True(t, isValidFQDN("example.com"))
	assert.True(t, isValidFQDN("1password.com"))
	assert.False(t, isValidFQDN("example"))
	assert.False(t, isValidFQDN("-x.example.com"))
	assert.False(t, isValidFQDN("a..com"))
	assert.False(t, isValidFQDN(strings.Repeat("a", 64)+".com"))
}
