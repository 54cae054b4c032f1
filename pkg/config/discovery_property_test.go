package config

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/servicekit/pkg/store"
)

// TestProperty_DiscoveryEmitsOnlyPortedBackends verifies that a backend appears
// in the result exactly when its port key is present, and that the database name
// defaults to the alias.
func TestProperty_DiscoveryEmitsOnlyPortedBackends(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	aliases := store.Aliases()

	properties.Property("one entry per ported alias", prop.ForAll(
		func(mask int, port int, withUser bool) bool {
			raw := make(map[string]string)
			for i, alias := range aliases {
				if mask&(1<<i) != 0 {
					raw[alias+"_port"] = strconv.Itoa(port)
				}
				if withUser {
					raw[alias+"_user"] = "svc"
				}
			}

			found, err := Discover(raw, DefaultConfig().Pool)
			if err != nil {
				return false
			}
			for i, alias := range aliases {
				p, ok := found[alias]
				if ok != (mask&(1<<i) != 0) {
					return false
				}
				if ok && (p.Port() != port || p.Database() != alias) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 7),
		gen.IntRange(1, 65535),
		gen.Bool(),
	))

	properties.Property("non-numeric ports always fail without output", prop.ForAll(
		func(index int, garbage string) bool {
			alias := aliases[index]
			if _, err := strconv.Atoi(garbage); err == nil {
				return true
			}
			found, err := Discover(map[string]string{alias + "_port": garbage}, DefaultConfig().Pool)
			_, isCfgErr := err.(*ConfigurationError)
			return isCfgErr && found == nil
		},
		gen.IntRange(0, len(aliases)-1),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
