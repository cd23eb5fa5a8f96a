package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlatform(t *testing.T) {
	doc, err := LoadPlatform()
	require.NoError(t, err)

	for _, path := range []string{
		"/stores",
		"/stores/{storeId}",
		"/stores/{storeId}/connect-database",
		"/stores/{storeId}/suspend",
		"/stores/{storeId}/credits",
		"/stores/{storeId}/credits/purchase",
		"/stores/{storeId}/credits/deduct",
	} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	assert.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
}
