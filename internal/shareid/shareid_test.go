package shareid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	enc, err := New("s3cret")
	require.NoError(t, err)

	ids := []string{"BxBXxLj1m4HMXBm9WZZmCWVbPjX16EHwv005e", "1", "acc/with?odd=chars"}
	for _, id := range ids {
		token, err := enc.Encrypt(id)
		require.NoError(t, err)
		assert.NotEqual(t, id, token)
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "+")

		got, err := enc.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestEmptyPassthrough(t *testing.T) {
	enc, err := New("s3cret")
	require.NoError(t, err)

	token, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, token)

	id, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDecryptRejectsForeignTokens(t *testing.T) {
	enc, err := New("s3cret")
	require.NoError(t, err)
	other, err := New("other")
	require.NoError(t, err)

	token, err := other.Encrypt("acc-1")
	require.NoError(t, err)

	_, err = enc.Decrypt(token)
	assert.ErrorIs(t, err, ErrInvalidShareableID)

	_, err = enc.Decrypt("not base64 !!")
	assert.ErrorIs(t, err, ErrInvalidShareableID)

	_, err = enc.Decrypt("YQ")
	assert.ErrorIs(t, err, ErrInvalidShareableID)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
