package testutil

import (
	"os"
	"testing"
)

// IntegrationEnv opts in to the container-backed adapter tests.
const IntegrationEnv = "INTEGRATION_TESTS"

// RequireIntegration skips t in -short mode, and in CI unless IntegrationEnv is set.
// Locally the tests run whenever a Docker daemon looks reachable.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv(IntegrationEnv) != "" {
		return
	}
	if os.Getenv("CI") != "" {
		t.Skipf("skipping integration test (set %s=1 to run)", IntegrationEnv)
	}
	if !dockerReachable() {
		t.Skip("skipping integration test: no docker daemon found")
	}
}

func dockerReachable() bool {
	if os.Getenv("DOCKER_HOST") != "" {
		return true
	}
	_, err := os.Stat("/var/run/docker.sock")
	return err == nil
}
