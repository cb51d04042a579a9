package integration

import (
	"os"
	"testing"

	"github.com/rs/zerolog/log"
)

const (
	envKey = "PARTSCAN_TEST_INTEGRATION"

	etcdEndpointEnvKey  = "PARTSCAN_TEST_ETCD_ENDPOINT"
	defaultEtcdEndpoint = "127.0.0.1:2379"
)

// IsIntegrationTest indicates that current test is an integration test.
// will be turned on if PARTSCAN_TEST_INTEGRATION environment variable is set.
var IsIntegrationTest bool

func init() {
	if _, ok := os.LookupEnv(envKey); ok {
		IsIntegrationTest = true
		log.Info().Msg("Starting integration test.")
	}
}

func RunOnIntegrationTest(t *testing.T) {
	if !IsIntegrationTest {
		t.Skipf("Skipping %s since it is integration test.", t.Name())
	}
}

// EtcdEndpoint returns the etcd endpoint integration tests connect to.
func EtcdEndpoint() string {
	if endpoint, ok := os.LookupEnv(etcdEndpointEnvKey); ok {
		return endpoint
	}
	return defaultEtcdEndpoint
}
