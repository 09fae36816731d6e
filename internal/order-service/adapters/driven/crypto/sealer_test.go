package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New(config.Cryptoconfig{DataKey: testKey()})
	require.NoError(t, err)

	for _, plain := range []string{"", "ул. Ленина, 1", "55.750000,37.620000"} {
		sealed, err := s.Seal(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, sealed)

		got, err := s.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestSealIsNotDeterministic(t *testing.T) {
	s, err := New(config.Cryptoconfig{DataKey: testKey()})
	require.NoError(t, err)

	a, err := s.Seal("same input")
	require.NoError(t, err)
	b, err := s.Seal("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	s, err := New(config.Cryptoconfig{DataKey: testKey()})
	require.NoError(t, err)

	sealed, err := s.Seal("секрет")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = s.Open(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)

	_, err = s.Open("not base64 at all!!!")
	assert.Error(t, err)

	_, err = s.Open(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New(config.Cryptoconfig{DataKey: "tooshort"})
	assert.Error(t, err)

	_, err = New(config.Cryptoconfig{DataKey: base64.StdEncoding.EncodeToString(make([]byte, 16))})
	assert.Error(t, err)
}
