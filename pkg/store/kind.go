package store

import (
	"fmt"
	"strings"
)

// Kind enumerates the supported backend variants.
type Kind int

const (
	// KindRelational is a SQL database reached through a bounded connection pool.
	KindRelational Kind = iota + 1
	// KindDocument is a document database whose client multiplexes connections internally.
	KindDocument
	// KindKeyValue is a key-value store reached through a pooled client.
	KindKeyValue
)

// Backend aliases used as discovery prefixes and registry keys.
const (
	AliasPostgres = "postgres"
	AliasMongo    = "mongo"
	AliasRedis    = "redis"
)

var kinds = []Kind{KindRelational, KindDocument, KindKeyValue}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Aliases returns the discovery prefixes of every supported kind.
func Aliases() []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.Alias())
	}
	return out
}

// ParseKind resolves a backend alias (case-insensitive) to its kind.
func ParseKind(alias string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(alias))
	for _, k := range kinds {
		if k.Alias() == normalized {
			return k, nil
		}
	}
	return 0, &UnsupportedBackendError{Name: alias}
}

// Alias returns the discovery prefix and registry key of the kind.
func (k Kind) Alias() string {
	switch k {
	case KindRelational:
		return AliasPostgres
	case KindDocument:
		return AliasMongo
	case KindKeyValue:
		return AliasRedis
	default:
		return ""
	}
}

// Scheme returns the URI scheme used when building connection URIs.
func (k Kind) Scheme() string {
	switch k {
	case KindRelational:
		return "postgresql"
	case KindDocument:
		return "mongodb"
	case KindKeyValue:
		return "redis"
	default:
		return ""
	}
}

// DefaultHost is the canonical hostname of the kind, matching the service name
// conventionally used for the backend inside a container network.
func (k Kind) DefaultHost() string {
	return k.Scheme()
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k.Alias() != ""
}

func (k Kind) String() string {
	if alias := k.Alias(); alias != "" {
		return alias
	}
	return fmt.Sprintf("kind(%d)", int(k))
}
