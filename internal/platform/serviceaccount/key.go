// Package serviceaccount mints OAuth access tokens for a service account
// acting on behalf of a workspace administrator (domain-wide delegation).
package serviceaccount

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenURI is used when the key file does not name one.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// Key is the subset of a service-account JSON key file the token flow needs.
type Key struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	TokenURI     string `json:"token_uri"`

	signer *rsa.PrivateKey
}

// LoadKeyFile reads and parses a JSON key file.
func LoadKeyFile(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	return ParseKey(data)
}

// ParseKey parses a JSON key and its PEM-encoded RSA private key.
func ParseKey(data []byte) (*Key, error) {
	var k Key
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	if k.Type != "" && k.Type != "service_account" {
		return nil, fmt.Errorf("key type %q is not a service account", k.Type)
	}
	if k.ClientEmail == "" {
		return nil, fmt.Errorf("service account key is missing client_email")
	}
	if k.PrivateKey == "" {
		return nil, fmt.Errorf("service account key is missing private_key")
	}
	if k.TokenURI == "" {
		k.TokenURI = DefaultTokenURI
	}
	signer, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(k.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account private key: %w", err)
	}
	k.signer = signer
	return &k, nil
}
