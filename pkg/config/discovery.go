package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nimburion/servicekit/pkg/store"
)

// ConfigurationError reports a malformed discovered value. Discovery that
// returns it emits no parameters at all.
type ConfigurationError struct {
	Key   string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid configuration %s=%q", e.Key, e.Value)
	}
	return fmt.Sprintf("invalid configuration %s=%q: %v", e.Key, e.Value, e.Err)
}

// Unwrap exposes the wrapped cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Discovered holds the connection parameters of every configured backend, keyed by alias.
type Discovered map[string]store.Params

// Names returns the discovered aliases in sorted order.
func (d Discovered) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Redacted returns a copy with every password masked.
func (d Discovered) Redacted() Discovered {
	out := make(Discovered, len(d))
	for name, p := range d {
		out[name] = p.Redacted()
	}
	return out
}

// Cosa fa: ricava i backend configurati da coppie chiave/valore di tipo env.
// Cosa NON fa: non contatta i backend e non legge l'ambiente da sola.
// Esempio minimo: found, err := config.Discover(map[string]string{"postgres_port": "5432"}, cfg.Pool)
//
// A backend is emitted only when its <alias>_port key is present. Keys are matched
// case-insensitively; <alias>_host, <alias>_user, <alias>_password and <alias>_db
// are optional. The same key spelled in two cases with different values is a
// ConfigurationError.
func Discover(raw map[string]string, pool PoolConfig) (Discovered, error) {
	if err := pool.Validate(); err != nil {
		return nil, err
	}

	aliases := store.Aliases()
	values := make(map[string]string)
	origin := make(map[string]string)
	for _, key := range sortedKeys(raw) {
		lower := strings.ToLower(strings.TrimSpace(key))
		if !mentionsAny(lower, aliases) {
			continue
		}
		value := raw[key]
		if prev, seen := values[lower]; seen && prev != value {
			return nil, &ConfigurationError{
				Key:   lower,
				Value: value,
				Err:   fmt.Errorf("conflicts with %s=%q", origin[lower], prev),
			}
		}
		values[lower] = value
		origin[lower] = key
	}

	prefixes := make(map[string]store.Kind)
	for key := range values {
		if !strings.HasSuffix(key, "_port") {
			continue
		}
		prefix, _, _ := strings.Cut(key, "_")
		kind, err := store.ParseKind(prefix)
		if err != nil {
			continue
		}
		prefixes[prefix] = kind
	}

	out := make(Discovered, len(prefixes))
	for _, prefix := range sortedKeys(prefixes) {
		kind := prefixes[prefix]
		portKey := prefix + "_port"
		rawPort, ok := values[portKey]
		if !ok {
			continue
		}

		port, err := parsePort(rawPort)
		if err != nil {
			return nil, &ConfigurationError{Key: portKey, Value: rawPort, Err: err}
		}

		opts := []store.ParamOption{
			store.WithCredentials(strings.TrimSpace(values[prefix+"_user"]), values[prefix+"_password"]),
			store.WithPool(pool.MinSize, pool.MaxSize, pool.IdleTimeout),
		}
		if host := strings.TrimSpace(values[prefix+"_host"]); host != "" {
			opts = append(opts, store.WithHost(host))
		}
		if db := strings.TrimSpace(values[prefix+"_db"]); db != "" {
			opts = append(opts, store.WithDatabase(db))
		}

		params := store.NewParams(kind, port, opts...)
		if err := params.Validate(); err != nil {
			return nil, &ConfigurationError{Key: prefix, Value: rawPort, Err: err}
		}
		out[prefix] = params
	}

	return out, nil
}

// RawFromEnviron turns KEY=value pairs, as returned by os.Environ, into discovery
// input. Only entries mentioning a backend alias are kept. Keys keep their case so
// Discover can reject variables that differ only in case.
func RawFromEnviron(environ []string) map[string]string {
	aliases := store.Aliases()
	out := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if mentionsAny(strings.ToLower(key), aliases) {
			out[key] = value
		}
	}
	return out
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("port is not an integer")
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

func mentionsAny(key string, aliases []string) bool {
	for _, alias := range aliases {
		if strings.Contains(key, alias) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
