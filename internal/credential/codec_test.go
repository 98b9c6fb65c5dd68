package credential

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec("")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		id := uuid.New()
		code := codec.Encode(id)
		assert.Len(t, code, len(DefaultPrefix)+1+KeyLength)

		key, err := codec.Decode(code)
		require.NoError(t, err, code)
		assert.True(t, key.Matches(id), "key %s should match %s", key, id)
	}
}

func TestCodec_EncodeShape(t *testing.T) {
	codec, err := NewCodec("QR")
	require.NoError(t, err)

	id := uuid.MustParse("3f2a9c1e-0d4b-4c6e-9a8b-1234567890ab")
	assert.Equal(t, "QR-3F2A9C1E", codec.Encode(id))
}

func TestCodec_DecodeNormalisesCaseAndSpace(t *testing.T) {
	codec, err := NewCodec("QR")
	require.NoError(t, err)

	key, err := codec.Decode("  qr-3f2a9c1e\n")
	require.NoError(t, err)
	assert.Equal(t, Key("3f2a9c1e"), key)
}

func TestCodec_DecodeRejectsMalformed(t *testing.T) {
	codec, err := NewCodec("QR")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "no prefix", in: "3F2A9C1E"},
		{name: "wrong prefix", in: "XX-3F2A9C1E"},
		{name: "short", in: "QR-3F2A9C1"},
		{name: "long", in: "QR-3F2A9C1EE"},
		{name: "non hex", in: "QR-3F2A9C1Z"},
		{name: "full uuid", in: "3f2a9c1e-0d4b-4c6e-9a8b-1234567890ab"},
		{name: "url", in: "https://example.com/QR-3F2A9C1E"},
		{name: "missing dash", in: "QR3F2A9C1E"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.in)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestNewCodec_InvalidPrefix(t *testing.T) {
	for _, p := range []string{"qr", "Q-R", "TOOLONGPREFIX"} {
		_, err := NewCodec(p)
		assert.Error(t, err, p)
	}
}
