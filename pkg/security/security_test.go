package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	a := GenerateToken(32)
	b := GenerateToken(32)

	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
}

func TestHashTokenStable(t *testing.T) {
	require.Equal(t, HashToken("vayva_abc"), HashToken("vayva_abc"))
	require.NotEqual(t, HashToken("vayva_abc"), HashToken("vayva_abd"))
	require.Len(t, HashToken("anything"), 64)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := KeyFromSecret("platform-secret")

	enc, err := Encrypt([]byte("whsec_0123456789"), key)
	require.NoError(t, err)
	require.NotEqual(t, "whsec_0123456789", enc)

	plain, err := Decrypt(enc, key)
	require.NoError(t, err)
	require.Equal(t, "whsec_0123456789", plain)
}

func TestDecryptWithWrongKey(t *testing.T) {
	enc, err := Encrypt([]byte("secret"), KeyFromSecret("right"))
	require.NoError(t, err)

	_, err = Decrypt(enc, KeyFromSecret("wrong"))
	require.Error(t, err)
}

func TestEncryptIsNondeterministic(t *testing.T) {
	key := KeyFromSecret("platform-secret")

	a, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	// Fresh nonce per call.
	require.NotEqual(t, a, b)
}
