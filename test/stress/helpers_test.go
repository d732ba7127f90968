package stress_test

import (
	"os"
	"testing"
)

// requireStressEnabled skips the test unless long stress tests are explicitly enabled.
//
// Enable by setting environment variable PARTIGROUP_STRESS=1 when invoking `go test`.
// Example:
//
//	PARTIGROUP_STRESS=1 go test -v -timeout 20m ./test/stress
func requireStressEnabled(t *testing.T) {
	t.Helper()
	if os.Getenv("PARTIGROUP_STRESS") != "1" {
		t.Skip("Skipping long stress test (set PARTIGROUP_STRESS=1 to run)")
	}
}
