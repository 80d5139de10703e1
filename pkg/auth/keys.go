package auth

import (
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-jose/go-jose/v4"
)

// ParsePublicKeys reads a JSON Web Key Set and returns its public signing
// keys. Private key material in the set is rejected.
func ParsePublicKeys(r io.Reader) ([]crypto.PublicKey, error) {
	var set jose.JSONWebKeySet
	if err := json.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}

	keys := make([]crypto.PublicKey, 0, len(set.Keys))
	for _, key := range set.Keys {
		if !key.Valid() {
			return nil, fmt.Errorf("key %q is invalid", key.KeyID)
		}
		if !key.IsPublic() {
			return nil, fmt.Errorf("key %q contains private key material", key.KeyID)
		}
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		keys = append(keys, key.Key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("key set contains no signing keys")
	}
	return keys, nil
}

// LoadPublicKeys reads a JSON Web Key Set file
func LoadPublicKeys(path string) ([]crypto.PublicKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key set: %w", err)
	}
	defer f.Close()
	return ParsePublicKeys(f)
}
