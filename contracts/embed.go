// Package contracts embeds the OpenAPI documents served and enforced by the
// API process.
package contracts

import (
	"embed"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed platform.yaml
var FS embed.FS

// LoadPlatform parses and validates the platform API contract.
func LoadPlatform() (*openapi3.T, error) {
	raw, err := FS.ReadFile("platform.yaml")
	if err != nil {
		return nil, err
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, err
	}
	return doc, nil
}
