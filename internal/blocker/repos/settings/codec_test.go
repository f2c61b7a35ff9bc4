package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/distraction-block/internal/blocker/domain"
)

func TestEncodeDecode(t *testing.T) {
	in := domain.Settings{BlockedSites: []string{"facebook.com", "twitter.com"}, IsBlocking: true}
	sites, flag, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, `["facebook.com","twitter.com"]`, string(sites))
	assert.Equal(t, `true`, string(flag))

	out, err := Decode(sites, flag)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncode_NilListIsEmptyArray(t *testing.T) {
	sites, _, err := Encode(domain.Settings{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(sites))
}

func TestDecode_MissingKeysUseDefaults(t *testing.T) {
	out, err := Decode(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), out)

	out, err = Decode([]byte(`null`), []byte(`true`))
	require.NoError(t, err)
	assert.NotNil(t, out.BlockedSites)
	assert.True(t, out.IsBlocking)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte(`{not json`), nil)
	assert.ErrorContains(t, err, KeyBlockedSites)

	_, err = Decode(nil, []byte(`"yes"`))
	assert.ErrorContains(t, err, KeyIsBlocking)
}
