package docent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/docent-db/docent/docent/store"
)

// Driver opens store clients for one URI scheme. Drivers register
// themselves under their scheme, usually from an init function, the way
// database/sql drivers do.
type Driver interface {
	Open(ctx context.Context, uri string) (store.Client, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver makes a driver available under the given URI scheme.
// It panics when the driver is nil or the scheme is already taken.
func RegisterDriver(scheme string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("docent: RegisterDriver with nil driver")
	}
	if _, dup := drivers[scheme]; dup {
		panic("docent: RegisterDriver called twice for scheme " + scheme)
	}
	drivers[scheme] = d
}

func lookupDriver(scheme string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[scheme]
	return d, ok
}

// DefaultAlias names the connection used when no alias is given.
const DefaultAlias = "default"

var dbNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// parseURI splits a connection URI into its scheme and database name.
// The database is the last path segment, query parameters excluded:
//
//	mem://local/blog          -> ("mem", "blog")
//	file:///var/data/blog?x=1 -> ("file", "blog")
func parseURI(uri string) (scheme, dbName string, err error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return "", "", fmt.Errorf("%w: %q has no scheme", ErrInvalidURI, uri)
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	dbName = rest
	if i := strings.LastIndexByte(rest, '/'); i >= 0 {
		dbName = rest[i+1:]
	}
	if dbName == "" {
		return "", "", fmt.Errorf("%w: %q names no database", ErrInvalidURI, uri)
	}
	if !dbNamePattern.MatchString(dbName) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDatabaseName, dbName)
	}
	return scheme, dbName, nil
}

// Connection is one live, aliased store connection.
type Connection struct {
	Alias  string
	URI    string
	DBName string

	client store.Client
	db     store.Database
}

// Database returns the connection's database handle.
func (c *Connection) Database() store.Database { return c.db }

// ConnRegistry holds named connections. Collections resolve their
// connection by alias at operation time, so connections may be
// established after the collections that use them.
type ConnRegistry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	logger *slog.Logger
}

// NewConnRegistry builds an empty registry logging through logger. A nil
// logger uses slog.Default.
func NewConnRegistry(logger *slog.Logger) *ConnRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnRegistry{
		conns:  make(map[string]*Connection),
		logger: logger,
	}
}

var defaultConns = NewConnRegistry(nil)

// DefaultConns returns the process-wide connection registry.
func DefaultConns() *ConnRegistry { return defaultConns }

// Connect establishes the registry's default connection.
func (r *ConnRegistry) Connect(ctx context.Context, uri string) error {
	return r.ConnectAlias(ctx, DefaultAlias, uri)
}

// ConnectAlias establishes a connection under alias, replacing and
// closing any previous connection held under the same alias.
func (r *ConnRegistry) ConnectAlias(ctx context.Context, alias, uri string) error {
	scheme, dbName, err := parseURI(uri)
	if err != nil {
		return err
	}
	driver, ok := lookupDriver(scheme)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	client, err := driver.Open(ctx, uri)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", Err, uri, err)
	}
	conn := &Connection{
		Alias:  alias,
		URI:    uri,
		DBName: dbName,
		client: client,
		db:     client.Database(dbName),
	}

	r.mu.Lock()
	prev := r.conns[alias]
	r.conns[alias] = conn
	r.mu.Unlock()

	if prev != nil {
		if err := prev.client.Disconnect(ctx); err != nil {
			r.logger.Warn("closing replaced connection", "alias", alias, "error", err)
		}
	}
	r.logger.Info("connected", "alias", alias, "scheme", scheme, "database", dbName)
	return nil
}

// Get returns the connection held under alias, or ErrNotConnected.
func (r *ConnRegistry) Get(alias string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[alias]
	if !ok {
		return nil, fmt.Errorf("%w: alias %q", ErrNotConnected, alias)
	}
	return conn, nil
}

// Disconnect closes and removes the connection under alias. Unknown
// aliases are a no-op.
func (r *ConnRegistry) Disconnect(ctx context.Context, alias string) error {
	r.mu.Lock()
	conn, ok := r.conns[alias]
	delete(r.conns, alias)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.client.Disconnect(ctx)
}

// DisconnectAll closes every connection, returning the first error.
func (r *ConnRegistry) DisconnectAll(ctx context.Context) error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	var first error
	for alias, conn := range conns {
		if err := conn.client.Disconnect(ctx); err != nil && first == nil {
			first = fmt.Errorf("%w: disconnect %q: %v", Err, alias, err)
		}
	}
	return first
}

// Connect establishes the process-wide default connection.
func Connect(ctx context.Context, uri string) error {
	return defaultConns.Connect(ctx, uri)
}

// ConnectAlias establishes a process-wide connection under alias.
func ConnectAlias(ctx context.Context, alias, uri string) error {
	return defaultConns.ConnectAlias(ctx, alias, uri)
}

// Disconnect closes the process-wide default connection.
func Disconnect(ctx context.Context) error {
	return defaultConns.Disconnect(ctx, DefaultAlias)
}

// DisconnectAll closes every process-wide connection.
func DisconnectAll(ctx context.Context) error {
	return defaultConns.DisconnectAll(ctx)
}
