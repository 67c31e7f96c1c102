package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type secretKind int

const (
	secretHex secretKind = iota
	// secretComplex generates an alphanumeric secret guaranteed to contain
	// at least one lowercase, one uppercase and one digit; the panel
	// rejects admin passwords that miss any class.
	secretComplex
)

type secretSpec struct {
	length int
	kind   secretKind
}

// Secrets the fleet needs to exist before the first configuration run.
var managedSecrets = map[string]secretSpec{
	"JWT_AUTH_SECRET":       {32, secretHex},
	"JWT_API_TOKENS_SECRET": {32, secretHex},
	"POSTGRES_PASSWORD":     {24, secretHex},
	"WEBHOOK_SECRET_HEADER": {32, secretHex},
	"METRICS_PASS":          {16, secretHex},
	"PANEL_ADMIN_PASSWORD":  {24, secretComplex},
	"BACKUP_PASSWORD":       {24, secretHex},
}

// EnsureSecretsFile loads the secrets file (creating it if absent), fills
// in any managed secret that is missing or empty, and writes the file back
// with 0600 permissions. It returns the names of generated secrets, sorted.
func EnsureSecretsFile(path string) ([]string, error) {
	secrets := map[string]string{}
	if data, err := os.ReadFile(path); err == nil { // #nosec G304
		if err := yaml.Unmarshal(data, &secrets); err != nil {
			return nil, fmt.Errorf("failed to parse secrets file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	var generated []string
	for name, spec := range managedSecrets {
		if secrets[name] != "" {
			continue
		}
		value, err := generateSecret(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", name, err)
		}
		secrets[name] = value
		generated = append(generated, name)
	}
	sort.Strings(generated)

	if len(generated) == 0 {
		return nil, nil
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal secrets: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write secrets file: %w", err)
	}
	return generated, nil
}

// LoadSecretsFile reads the secrets file into a map. A missing file is not
// an error; it returns an empty map.
func LoadSecretsFile(path string) (map[string]string, error) {
	secrets := map[string]string{}
	data, err := os.ReadFile(path) // #nosec G304
	if os.IsNotExist(err) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", path, err)
	}
	return secrets, nil
}

func generateSecret(spec secretSpec) (string, error) {
	if spec.kind == secretHex {
		buf := make([]byte, spec.length)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		return hex.EncodeToString(buf), nil
	}

	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for {
		buf := make([]byte, spec.length)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return "", err
			}
			buf[i] = alphabet[n.Int64()]
		}
		s := string(buf)
		if hasLower(s) && hasUpper(s) && hasDigit(s) {
			return s, nil
		}
	}
}

func hasLower(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

func hasUpper(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
