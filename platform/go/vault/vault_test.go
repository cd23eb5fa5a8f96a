package vault

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewFromBase64Key(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		encoded string
		wantErr bool
	}{
		{name: "valid 256-bit key", encoded: testKey(t), wantErr: false},
		{name: "empty", encoded: "", wantErr: true},
		{name: "whitespace only", encoded: "   ", wantErr: true},
		{name: "not base64", encoded: "!!not-base64!!", wantErr: true},
		{name: "wrong length", encoded: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := NewFromBase64Key(tc.encoded)
			if tc.wantErr {
				require.Error(t, err)
				require.True(t, IsCryptoError(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, v)
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := NewFromBase64Key(testKey(t))
	require.NoError(t, err)

	plaintext := []byte(`{"projectUrl":"https://db.acme.example","serviceRoleKey":"sr-key"}`)
	blob, err := v.Encrypt(plaintext)
	require.NoError(t, err)

	parts := strings.Split(blob, ":")
	require.Len(t, parts, 3, "blob must be nonce:tag:ciphertext")
	for _, p := range parts {
		_, err := base64.StdEncoding.DecodeString(p)
		require.NoError(t, err, "each segment must be standalone base64")
	}

	out, err := v.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	t.Parallel()

	v, err := NewFromBase64Key(testKey(t))
	require.NoError(t, err)

	a, err := v.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := v.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptTamperDetection(t *testing.T) {
	t.Parallel()

	v, err := NewFromBase64Key(testKey(t))
	require.NoError(t, err)

	blob, err := v.Encrypt([]byte("secret connection material"))
	require.NoError(t, err)
	parts := strings.Split(blob, ":")

	flip := func(segment string) string {
		raw, err := base64.StdEncoding.DecodeString(segment)
		require.NoError(t, err)
		raw[0] ^= 0x01
		return base64.StdEncoding.EncodeToString(raw)
	}

	tests := []struct {
		name string
		blob string
	}{
		{name: "tampered ciphertext", blob: parts[0] + ":" + parts[1] + ":" + flip(parts[2])},
		{name: "tampered tag", blob: parts[0] + ":" + flip(parts[1]) + ":" + parts[2]},
		{name: "tampered nonce", blob: flip(parts[0]) + ":" + parts[1] + ":" + parts[2]},
		{name: "truncated", blob: parts[0] + ":" + parts[1]},
		{name: "garbage", blob: "not-a-blob"},
		{name: "empty", blob: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := v.Decrypt(tc.blob)
			require.Error(t, err)
			require.True(t, IsCryptoError(err))
			require.Nil(t, out)
		})
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	t.Parallel()

	a, err := NewFromBase64Key(testKey(t))
	require.NoError(t, err)
	b, err := NewFromBase64Key(testKey(t))
	require.NoError(t, err)

	blob, err := a.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Decrypt(blob)
	require.Error(t, err)
	require.True(t, IsCryptoError(err))
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := NewFromBase64Key(testKey(t))
	require.NoError(t, err)

	creds := Credentials{
		ProjectURL:       "https://db.acme.example",
		ServiceRoleKey:   "service-role-key",
		AnonKey:          "anon-key",
		ConnectionString: "postgres://acme:pw@db.acme.example:5432/store",
	}

	blob, err := v.EncryptCredentials(creds)
	require.NoError(t, err)

	out, err := v.DecryptCredentials(blob)
	require.NoError(t, err)
	require.Equal(t, creds, out)
}

func TestEncryptCredentialsRejectsMissingFields(t *testing.T) {
	t.Parallel()

	v, err := NewFromBase64Key(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name  string
		creds Credentials
	}{
		{name: "missing project url", creds: Credentials{ServiceRoleKey: "k"}},
		{name: "missing service role key", creds: Credentials{ProjectURL: "https://db.example"}},
		{name: "non-http project url", creds: Credentials{ProjectURL: "ftp://db.example", ServiceRoleKey: "k"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.EncryptCredentials(tc.creds)
			require.Error(t, err)
		})
	}
}

func TestCredentialsHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://db.acme.example", want: "db.acme.example"},
		{url: "https://db.acme.example/v1", want: "db.acme.example"},
		{url: "http://localhost:54321", want: "localhost:54321"},
	}

	for _, tc := range tests {
		got := Credentials{ProjectURL: tc.url}.Host()
		require.Equal(t, tc.want, got)
	}
}
