package store

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Pool defaults applied when a parameter is not overridden.
const (
	DefaultMinPoolSize = 5
	DefaultMaxPoolSize = 10
	DefaultIdleTimeout = 300 * time.Second
)

// Params holds the connection parameters of one backend. Values are fixed at
// construction; the zero Params is not valid, use NewParams.
type Params struct {
	kind        Kind
	host        string
	port        int
	user        string
	password    string
	database    string
	minPoolSize int
	maxPoolSize int
	idleTimeout time.Duration
}

// ParamOption customizes Params during construction.
type ParamOption func(*Params)

// WithHost overrides the kind's canonical hostname.
func WithHost(host string) ParamOption {
	return func(p *Params) { p.host = host }
}

// WithCredentials sets the user and password. Empty values mean "absent".
func WithCredentials(user, password string) ParamOption {
	return func(p *Params) {
		p.user = user
		p.password = password
	}
}

// WithDatabase overrides the database name, which otherwise defaults to the kind alias.
func WithDatabase(name string) ParamOption {
	return func(p *Params) { p.database = name }
}

// WithPool sets the pool bounds and the idle connection timeout. Non-positive values keep defaults.
func WithPool(minSize, maxSize int, idle time.Duration) ParamOption {
	return func(p *Params) {
		if minSize > 0 {
			p.minPoolSize = minSize
		}
		if maxSize > 0 {
			p.maxPoolSize = maxSize
		}
		if idle > 0 {
			p.idleTimeout = idle
		}
	}
}

// NewParams builds connection parameters for kind listening on port.
func NewParams(kind Kind, port int, opts ...ParamOption) Params {
	p := Params{
		kind:        kind,
		port:        port,
		minPoolSize: DefaultMinPoolSize,
		maxPoolSize: DefaultMaxPoolSize,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Kind returns the backend variant.
func (p Params) Kind() Kind { return p.kind }

// Host returns the configured host or the kind's canonical hostname.
func (p Params) Host() string {
	if p.host != "" {
		return p.host
	}
	return p.kind.DefaultHost()
}

// Port returns the backend port.
func (p Params) Port() int { return p.port }

// User returns the configured user, empty when absent.
func (p Params) User() string { return p.user }

// Password returns the configured password, empty when absent.
func (p Params) Password() string { return p.password }

// Database returns the configured database name or the kind alias.
func (p Params) Database() string {
	if p.database != "" {
		return p.database
	}
	return p.kind.Alias()
}

// MinPoolSize returns the lower pool bound.
func (p Params) MinPoolSize() int { return p.minPoolSize }

// MaxPoolSize returns the upper pool bound.
func (p Params) MaxPoolSize() int { return p.maxPoolSize }

// IdleTimeout returns how long an idle pooled connection is retained.
func (p Params) IdleTimeout() time.Duration { return p.idleTimeout }

// Address returns host:port.
func (p Params) Address() string {
	return net.JoinHostPort(p.Host(), strconv.Itoa(p.port))
}

// Validate checks the invariants adapters rely on.
func (p Params) Validate() error {
	if !p.kind.Valid() {
		return &UnsupportedBackendError{Name: p.kind.String()}
	}
	if p.port < 1 || p.port > 65535 {
		return fmt.Errorf("%s port %d out of range", p.kind, p.port)
	}
	if p.maxPoolSize < 1 {
		return fmt.Errorf("%s max pool size must be positive", p.kind)
	}
	if p.minPoolSize > p.maxPoolSize {
		return fmt.Errorf("%s min pool size %d exceeds max pool size %d", p.kind, p.minPoolSize, p.maxPoolSize)
	}
	return nil
}

// Redacted returns a copy safe to log: the password is masked when present.
func (p Params) Redacted() Params {
	if p.password != "" {
		p.password = "***"
	}
	return p
}

// BuildURI renders scheme://[user[:password]@]host:port/database with the given
// scheme and userinfo. Pass a nil userinfo to omit credentials entirely.
func BuildURI(scheme string, userinfo *url.Userinfo, p Params, path string) string {
	u := url.URL{
		Scheme: scheme,
		User:   userinfo,
		Host:   p.Address(),
		Path:   "/" + path,
	}
	return u.String()
}

// DefaultUserinfo encodes the credentials of p, or returns nil when no user is set.
func DefaultUserinfo(p Params) *url.Userinfo {
	if p.user == "" {
		return nil
	}
	if p.password == "" {
		return url.User(p.user)
	}
	return url.UserPassword(p.user, p.password)
}

// DefaultURI renders the general URI shape shared by adapters that do not override it.
func DefaultURI(p Params) string {
	return BuildURI(p.kind.Scheme(), DefaultUserinfo(p), p, p.Database())
}
