package fleet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint hashes every registration-relevant field of a spec. Two specs
// with equal fingerprints never trigger a registration replacement; any
// difference forces one, independent of compute-instance churn, because the
// downstream registration API has no in-place update.
//
// The encoding is canonical: list and map fields are sorted before hashing
// so declaration order in the config file does not change the result.
func Fingerprint(spec NodeSpec) string {
	var b strings.Builder

	fmt.Fprintf(&b, "region=%s\n", spec.Region)
	fmt.Fprintf(&b, "plan=%s\n", spec.Plan)
	fmt.Fprintf(&b, "port=%d\n", spec.Port)

	inbounds := make([]string, len(spec.Inbounds))
	copy(inbounds, spec.Inbounds)
	sort.Strings(inbounds)
	fmt.Fprintf(&b, "inbounds=%s\n", strings.Join(inbounds, ","))

	for _, k := range sortedKeys(spec.Tags) {
		fmt.Fprintf(&b, "tag.%s=%s\n", k, spec.Tags[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
