package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJWTToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		found  bool
	}{
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"lowercase scheme", "bearer abc.def.ghi", "abc.def.ghi", true},
		{"missing header", "", "", false},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, found := ExtractJWTToken(r)
			require.Equal(t, tt.found, found)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultCredentialExtractor(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"uid":            "33333333-3333-4333-8333-333333333333",
		"email":          "owner@example.com",
		"isAdmin":        true,
		"email_verified": true,
	})
	require.NoError(t, err)
	require.Equal(t, "33333333-3333-4333-8333-333333333333", creds.Id)
	require.Equal(t, "owner@example.com", creds.Email)
	require.True(t, creds.IsAdmin)
	require.True(t, creds.EmailVerified)
}

func TestDefaultCredentialExtractorSubFallback(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"sub": "account-sub",
	})
	require.NoError(t, err)
	require.Equal(t, "account-sub", creds.Id)
}

func TestWithUserRoundTrip(t *testing.T) {
	creds := &UserCredentials{Id: "account-1", Email: "owner@example.com"}

	ctx := WithUser(context.Background(), creds)

	got, ok := UserFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, creds, got)

	_, ok = UserFromContext(context.Background())
	require.False(t, ok)
}
