package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	spec := NodeSpec{
		Name:     "node-jp-0",
		Region:   "jp",
		Plan:     "p1",
		Port:     2222,
		Inbounds: []string{"vless", "trojan"},
		Tags:     map[string]string{"env": "prod", "tier": "edge"},
	}

	assert.Equal(t, Fingerprint(spec), Fingerprint(spec))
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := NodeSpec{
		Region:   "jp",
		Plan:     "p1",
		Inbounds: []string{"vless", "trojan"},
		Tags:     map[string]string{"env": "prod", "tier": "edge"},
	}
	b := NodeSpec{
		Region:   "jp",
		Plan:     "p1",
		Inbounds: []string{"trojan", "vless"},
		Tags:     map[string]string{"tier": "edge", "env": "prod"},
	}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintFieldSensitivity(t *testing.T) {
	base := NodeSpec{Region: "jp", Plan: "p1", Port: 2222, Inbounds: []string{"vless"}}

	tests := []struct {
		name   string
		mutate func(s *NodeSpec)
	}{
		{"region", func(s *NodeSpec) { s.Region = "de" }},
		{"plan", func(s *NodeSpec) { s.Plan = "p2" }},
		{"port", func(s *NodeSpec) { s.Port = 2443 }},
		{"inbounds", func(s *NodeSpec) { s.Inbounds = []string{"vless", "trojan"} }},
		{"tags", func(s *NodeSpec) { s.Tags = map[string]string{"env": "prod"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := base
			tt.mutate(&changed)
			assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
		})
	}
}

func TestFingerprintNameNotIncluded(t *testing.T) {
	// Renaming a node is a destroy+create, decided by map keys in the
	// differ, not by the fingerprint.
	a := NodeSpec{Name: "node-jp-0", Region: "jp", Plan: "p1"}
	b := NodeSpec{Name: "node-jp-1", Region: "jp", Plan: "p1"}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}
