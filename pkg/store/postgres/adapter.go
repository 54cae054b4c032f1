// Package postgres implements the relational connection manager on top of
// database/sql and the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/store"
)

const driverName = "postgres"

// Row is one materialized result row keyed by column name.
type Row map[string]any

// Config holds driver settings that are not part of the discovered parameters.
type Config struct {
	// SSLMode is appended to the DSN. Defaults to "disable".
	SSLMode        string
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// Adapter manages a bounded PostgreSQL connection pool.
type Adapter struct {
	params store.Params
	config Config
	logger logger.Logger

	mu sync.RWMutex
	db *sql.DB

	open func(driver, dsn string) (*sql.DB, error)
}

// Cosa fa: prepara un adapter relazionale a partire dai parametri scoperti.
// Cosa NON fa: non apre connessioni; il pool nasce alla prima Connect.
// Esempio minimo: adp, err := postgres.NewAdapter(params, postgres.Config{}, log)
func NewAdapter(params store.Params, cfg Config, log logger.Logger) (*Adapter, error) {
	if params.Kind() != store.KindRelational {
		return nil, fmt.Errorf("postgres adapter requires relational params, got %s", params.Kind())
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres params: %w", err)
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Adapter{
		params: params,
		config: cfg,
		logger: log.With("backend", params.Kind().Alias()),
		open:   sql.Open,
	}, nil
}

// Name returns the registry key of the adapter.
func (a *Adapter) Name() string { return a.params.Kind().Alias() }

// Kind returns store.KindRelational.
func (a *Adapter) Kind() store.Kind { return store.KindRelational }

// Params returns the parameters the adapter was built from.
func (a *Adapter) Params() store.Params { return a.params }

// BuildURI renders postgresql://[user[:password]@]host:port/database.
func (a *Adapter) BuildURI() string {
	return store.DefaultURI(a.params)
}

func (a *Adapter) dsn() string {
	q := url.Values{}
	q.Set("sslmode", a.config.SSLMode)
	return a.BuildURI() + "?" + q.Encode()
}

// Connect opens the pool sized [min,max] and verifies it with a ping.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		return nil
	}

	db, err := a.open(driverName, a.dsn())
	if err != nil {
		return &store.ConnectionError{Backend: a.Name(), Err: fmt.Errorf("failed to open database: %w", err)}
	}

	db.SetMaxOpenConns(a.params.MaxPoolSize())
	db.SetMaxIdleConns(a.params.MinPoolSize())
	db.SetConnMaxIdleTime(a.params.IdleTimeout())

	pingCtx, cancel := context.WithTimeout(ctx, a.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return &store.ConnectionError{Backend: a.Name(), Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	a.db = db
	a.logger.Info("PostgreSQL connection established",
		"address", a.params.Address(),
		"database", a.params.Database(),
		"min_pool_size", a.params.MinPoolSize(),
		"max_pool_size", a.params.MaxPoolSize(),
		"idle_timeout", a.params.IdleTimeout(),
	)
	return nil
}

// Close closes the entire pool. Calling it when not connected is a no-op.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return nil
	}

	db := a.db
	a.db = nil
	if err := db.Close(); err != nil {
		a.logger.Error("failed to close PostgreSQL connection", "error", err)
		return &store.CloseError{Backend: a.Name(), Err: err}
	}
	a.logger.Info("PostgreSQL connection closed")
	return nil
}

// Connected reports whether the pool is open.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db != nil
}

// Pool returns the underlying *sql.DB, nil when not connected.
func (a *Adapter) Pool() *sql.DB {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db
}

// HealthCheck verifies the pool is healthy with a timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	db := a.Pool()
	if db == nil {
		return fmt.Errorf("database health check failed: %w", store.ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		a.logger.Error("PostgreSQL health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ensure returns the pool, connecting first when needed.
func (a *Adapter) ensure(ctx context.Context) (*sql.DB, error) {
	if db := a.Pool(); db != nil {
		return db, nil
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	if db := a.Pool(); db != nil {
		return db, nil
	}
	return nil, &store.ConnectionError{Backend: a.Name(), Err: store.ErrNotConnected}
}

// Acquire checks a single connection out of the pool. The caller owns it until Release.
func (a *Adapter) Acquire(ctx context.Context) (*sql.Conn, error) {
	db, err := a.ensure(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// Release returns a connection obtained from Acquire to the pool.
func (a *Adapter) Release(conn *sql.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to release connection: %w", err)
	}
	return nil
}

// WithConn runs fn on a checked-out connection and releases it on every exit path,
// including errors and panics raised by fn.
func (a *Adapter) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := a.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := a.Release(conn); relErr != nil {
			a.logger.Error("failed to release connection", "error", relErr)
		}
	}()
	return fn(ctx, conn)
}

// Execute runs a statement and returns the number of affected rows.
func (a *Adapter) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := a.run(ctx, func(queryCtx context.Context, q queryer) error {
		res, err := q.ExecContext(queryCtx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// Fetch runs a query and materializes every row.
func (a *Adapter) Fetch(ctx context.Context, query string, args ...any) ([]Row, error) {
	var out []Row
	err := a.run(ctx, func(queryCtx context.Context, q queryer) error {
		rows, err := q.QueryContext(queryCtx, query, args...)
		if err != nil {
			return err
		}
		out, err = scanRows(rows)
		return err
	})
	return out, err
}

// FetchValue returns the first column of the first row, or nil when the query yields no rows.
func (a *Adapter) FetchValue(ctx context.Context, query string, args ...any) (any, error) {
	var value any
	err := a.run(ctx, func(queryCtx context.Context, q queryer) error {
		err := q.QueryRowContext(queryCtx, query, args...).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			value = nil
			return nil
		}
		return err
	})
	return value, err
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// run executes fn against the transaction stored in ctx when present, otherwise
// against a connection scoped to this call.
func (a *Adapter) run(ctx context.Context, fn func(ctx context.Context, q queryer) error) error {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()

	if tx, ok := GetTx(ctx); ok {
		return fn(queryCtx, tx)
	}
	return a.WithConn(queryCtx, func(ctx context.Context, conn *sql.Conn) error {
		return fn(ctx, conn)
	})
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// WithTransaction executes the given function within a database transaction
// If the function returns an error, the transaction is rolled back
// Otherwise, the transaction is committed
func (a *Adapter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db, err := a.ensure(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Error("failed to rollback transaction after panic",
					"panic", p,
					"rollback_error", rbErr,
				)
			}
			panic(p)
		}
	}()

	txCtx := context.WithValue(ctx, txContextKey, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Error("failed to rollback transaction",
				"original_error", err,
				"rollback_error", rbErr,
			)
			return fmt.Errorf("failed to rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type contextKey string

const txContextKey contextKey = "tx"

// GetTx extracts a transaction from the context, if present
func GetTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey).(*sql.Tx)
	return tx, ok
}

func (a *Adapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}
