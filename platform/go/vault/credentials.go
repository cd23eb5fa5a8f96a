package vault

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed credentials_schema.json
var credentialsSchemaJSON string

// credentialsSchema is compiled once; the schema is embedded and static.
var credentialsSchema = jsonschema.MustCompileString("credentials_schema.json", credentialsSchemaJSON)

// Credentials is the plaintext connection secret for one store's operational
// database. It exists only as a transient in-memory value between decryption
// and pool construction. Never persist or log it.
type Credentials struct {
	ProjectURL       string `json:"projectUrl"`
	ServiceRoleKey   string `json:"serviceRoleKey"`
	AnonKey          string `json:"anonKey,omitempty"`
	ConnectionString string `json:"connectionString,omitempty"`
}

// Host extracts the non-sensitive host portion of the project URL for
// display and observability.
func (c Credentials) Host() string {
	host := c.ProjectURL
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	return host
}

// Validate checks the mandatory subfields against the embedded JSON Schema.
// Malformed credentials must never be encrypted and stored, so EncryptCredentials
// runs this before sealing.
func (c Credentials) Validate() error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("decode credentials: %w", err)
	}
	if err := credentialsSchema.Validate(document); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return nil
}

// EncryptCredentials validates and seals a credential object.
func (v *Vault) EncryptCredentials(c Credentials) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: fmt.Errorf("encode credentials: %w", err)}
	}
	return v.Encrypt(payload)
}

// DecryptCredentials opens a sealed blob back into a credential object.
func (v *Vault) DecryptCredentials(blob string) (Credentials, error) {
	plaintext, err := v.Decrypt(blob)
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return Credentials{}, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode credentials: %w", err)}
	}
	return c, nil
}
