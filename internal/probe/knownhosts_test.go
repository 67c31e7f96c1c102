package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const knownHostsFixture = `# fleet hosts
203.0.113.10 ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAA oldkey
[203.0.113.11]:2222 ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAA otherkey
203.0.113.12,node-jp-0.example.com ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAA aliased
`

func writeKnownHosts(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(path, []byte(knownHostsFixture), 0o600))
	return path
}

func TestPurgeKnownHostRemovesMatchingEntry(t *testing.T) {
	path := writeKnownHosts(t)

	require.NoError(t, PurgeKnownHost(path, "203.0.113.10"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "oldkey")
	assert.Contains(t, string(data), "otherkey")
	assert.Contains(t, string(data), "aliased")
}

func TestPurgeKnownHostBracketedPort(t *testing.T) {
	path := writeKnownHosts(t)

	require.NoError(t, PurgeKnownHost(path, "203.0.113.11"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "otherkey")
	assert.Contains(t, string(data), "oldkey")
}

func TestPurgeKnownHostCommaSeparatedAliases(t *testing.T) {
	path := writeKnownHosts(t)

	require.NoError(t, PurgeKnownHost(path, "203.0.113.12"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "aliased")
}

func TestPurgeKnownHostNoMatchLeavesFileUntouched(t *testing.T) {
	path := writeKnownHosts(t)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, PurgeKnownHost(path, "198.51.100.1"))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPurgeKnownHostMissingFile(t *testing.T) {
	assert.NoError(t, PurgeKnownHost(filepath.Join(t.TempDir(), "absent"), "203.0.113.10"))
}

func TestPurgeKnownHostConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")

	addresses := make([]string, 8)
	lines := make([]string, len(addresses))
	for i := range addresses {
		addresses[i] = fmt.Sprintf("203.0.113.%d", i+1)
		lines[i] = fmt.Sprintf("%s ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAA key%d", addresses[i], i+1)
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	// One purge per address, all at once, the way the probe fan-out does it.
	var wg sync.WaitGroup
	for _, address := range addresses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, PurgeKnownHost(path, address))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, address := range addresses {
		assert.NotContains(t, string(data), address, "entry survived concurrent purge")
	}
}
