package probe

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// knownHostsMu serializes rewrites of the known_hosts file. Probes fan out
// per host; an unguarded read-modify-write would let one goroutine's
// rewrite resurrect entries another just removed.
var knownHostsMu sync.Mutex

// PurgeKnownHost removes every known_hosts entry matching the address so a
// re-provisioned host's new key is accepted. A missing file is a no-op.
// Hashed entries cannot be matched by address and are left alone; callers
// verifying against hashed files should disable caching instead. Safe for
// concurrent use against the same file.
func PurgeKnownHost(path, address string) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	data, err := os.ReadFile(path) // #nosec G304
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read known_hosts: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	kept := make([]string, 0, len(lines))
	changed := false

	for _, line := range lines {
		if matchesKnownHost(line, address) {
			changed = true
			continue
		}
		kept = append(kept, line)
	}

	if !changed {
		return nil
	}
	if err := os.WriteFile(path, []byte(strings.Join(kept, "\n")), 0o600); err != nil {
		return fmt.Errorf("failed to rewrite known_hosts: %w", err)
	}
	return nil
}

// matchesKnownHost reports whether a known_hosts line names the address,
// either bare or in bracketed host:port form, possibly comma-separated
// with other hostnames.
func matchesKnownHost(line, address string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 3 {
		return false
	}

	for _, host := range strings.Split(fields[0], ",") {
		if host == address {
			return true
		}
		if strings.HasPrefix(host, "["+address+"]:") {
			return true
		}
	}
	return false
}
