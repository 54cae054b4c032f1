package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

const (
	policiesAnnotationPrefix = "policies."
	defaultPolicyContext     = "run"
)

// CommandPolicy tells deployment tooling when a command is meant to run.
type CommandPolicy string

const (
	PolicyAlways   CommandPolicy = "always"
	PolicyNever    CommandPolicy = "never"
	PolicyRun      CommandPolicy = "run"
	PolicyManual   CommandPolicy = "manual"
	PolicyOnDemand CommandPolicy = "on_demand"
)

// SetCommandPolicies stores policies as command annotations under the "policies." prefix.
// Existing policies are replaced.
func SetCommandPolicies(cmd *cobra.Command, policies map[string]CommandPolicy) {
	if cmd == nil {
		return
	}
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	for _, key := range policyAnnotationKeys(cmd.Annotations) {
		delete(cmd.Annotations, key)
	}
	for context, policy := range policies {
		trimmed := strings.TrimSpace(context)
		if trimmed == "" {
			continue
		}
		cmd.Annotations[policiesAnnotationPrefix+trimmed] = string(policy)
	}
}

// GetCommandPolicies returns the policies stored on cmd, keyed by context.
func GetCommandPolicies(cmd *cobra.Command) map[string]string {
	out := map[string]string{}
	if cmd == nil {
		return out
	}
	for key, value := range cmd.Annotations {
		if !strings.HasPrefix(key, policiesAnnotationPrefix) {
			continue
		}
		context := strings.TrimPrefix(key, policiesAnnotationPrefix)
		if strings.TrimSpace(context) == "" {
			continue
		}
		out[context] = value
	}
	return out
}

// ensureDefaultPolicies walks the tree and marks every command without a policy as always runnable.
func ensureDefaultPolicies(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	if len(GetCommandPolicies(cmd)) == 0 {
		SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	}
	for _, child := range cmd.Commands() {
		ensureDefaultPolicies(child)
	}
}

func policyAnnotationKeys(annotations map[string]string) []string {
	keys := make([]string, 0, len(annotations))
	for key := range annotations {
		if strings.HasPrefix(key, policiesAnnotationPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
