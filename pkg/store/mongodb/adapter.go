// Package mongodb implements the document connection manager on top of the
// official MongoDB driver. The driver multiplexes connections internally, so the
// adapter holds one client for its whole lifetime.
package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/store"
)

// Config holds driver settings that are not part of the discovered parameters.
type Config struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// Adapter provides MongoDB connectivity.
type Adapter struct {
	params  store.Params
	logger  logger.Logger
	connect time.Duration
	timeout time.Duration

	mu     sync.RWMutex
	client *mongo.Client
}

// Cosa fa: prepara un adapter MongoDB a partire dai parametri scoperti.
// Cosa NON fa: non contatta il server; il client nasce alla prima Connect.
// Esempio minimo: adapter, err := mongodb.NewAdapter(params, mongodb.Config{}, log)
func NewAdapter(params store.Params, cfg Config, log logger.Logger) (*Adapter, error) {
	if params.Kind() != store.KindDocument {
		return nil, fmt.Errorf("mongodb adapter requires document params, got %s", params.Kind())
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb params: %w", err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Adapter{
		params:  params,
		logger:  log.With("backend", params.Kind().Alias()),
		connect: cfg.ConnectTimeout,
		timeout: cfg.OperationTimeout,
	}, nil
}

// Name returns the registry key of the adapter.
func (a *Adapter) Name() string { return a.params.Kind().Alias() }

// Kind returns store.KindDocument.
func (a *Adapter) Kind() store.Kind { return store.KindDocument }

// Params returns the parameters the adapter was built from.
func (a *Adapter) Params() store.Params { return a.params }

// BuildURI renders the connection URI. Credentials appear only when both user
// and password are set.
func (a *Adapter) BuildURI() string {
	userinfo := store.DefaultUserinfo(a.params)
	if a.params.User() == "" || a.params.Password() == "" {
		userinfo = nil
	}
	return store.BuildURI(a.params.Kind().Scheme(), userinfo, a.params, a.params.Database())
}

// Connect creates the client and pings the primary.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return nil
	}

	opts := options.Client().
		ApplyURI(a.BuildURI()).
		SetMinPoolSize(uint64(a.params.MinPoolSize())).
		SetMaxPoolSize(uint64(a.params.MaxPoolSize())).
		SetMaxConnIdleTime(a.params.IdleTimeout()).
		SetConnectTimeout(a.connect).
		SetServerSelectionTimeout(a.connect)

	connCtx, cancel := context.WithTimeout(ctx, a.connect)
	defer cancel()

	client, err := mongo.Connect(connCtx, opts)
	if err != nil {
		return &store.ConnectionError{Backend: a.Name(), Err: fmt.Errorf("failed to connect to mongodb: %w", err)}
	}

	if err := client.Ping(connCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return &store.ConnectionError{Backend: a.Name(), Err: fmt.Errorf("failed to ping mongodb: %w", err)}
	}

	a.client = client
	a.logger.Info("MongoDB connection established",
		"address", a.params.Address(),
		"database", a.params.Database(),
		"max_pool_size", a.params.MaxPoolSize(),
	)
	return nil
}

// Close disconnects the client. Calling it when not connected is a no-op.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client == nil {
		return nil
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Disconnect(closeCtx); err != nil {
		a.logger.Error("failed to close MongoDB connection", "error", err)
		return &store.CloseError{Backend: a.Name(), Err: err}
	}
	a.logger.Info("MongoDB connection closed")
	return nil
}

// Connected reports whether the client is open.
func (a *Adapter) Connected() bool {
	return a.Client() != nil
}

// Client returns the driver client, nil when not connected.
func (a *Adapter) Client() *mongo.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// Database returns the handle of the configured database.
func (a *Adapter) Database() (*mongo.Database, error) {
	client := a.Client()
	if client == nil {
		return nil, fmt.Errorf("%s: %w", a.Name(), store.ErrNotConnected)
	}
	return client.Database(a.params.Database()), nil
}

// Collection returns a collection handle without connecting.
func (a *Adapter) Collection(name string) (*mongo.Collection, error) {
	db, err := a.Database()
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// HealthCheck pings the primary with a short timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	client := a.Client()
	if client == nil {
		return fmt.Errorf("mongodb health check failed: %w", store.ErrNotConnected)
	}
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(hcCtx, readpref.Primary()); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// collection connects when needed and returns the named collection.
func (a *Adapter) collection(ctx context.Context, name string) (*mongo.Collection, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return a.Collection(name)
}

// FindOne decodes the first document matching filter into result. It returns
// mongo.ErrNoDocuments when nothing matches.
func (a *Adapter) FindOne(ctx context.Context, collection string, filter, result any) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	coll, err := a.collection(opCtx, collection)
	if err != nil {
		return err
	}
	return coll.FindOne(opCtx, filter).Decode(result)
}

// FindMany decodes up to limit matching documents into results, which must be a
// pointer to a slice. A non-positive limit returns every match.
func (a *Adapter) FindMany(ctx context.Context, collection string, filter, results any, limit int64) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	coll, err := a.collection(opCtx, collection)
	if err != nil {
		return err
	}

	findOpts := options.Find()
	if limit > 0 {
		findOpts.SetLimit(limit)
	}
	cursor, err := coll.Find(opCtx, filter, findOpts)
	if err != nil {
		return err
	}
	return cursor.All(opCtx, results)
}

// Cosa fa: inserisce un documento nella collection target.
// Cosa NON fa: non valida lo schema del documento.
// Esempio minimo: _, err := adapter.InsertOne(ctx, "users", doc)
func (a *Adapter) InsertOne(ctx context.Context, collection string, doc any) (*mongo.InsertOneResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	coll, err := a.collection(opCtx, collection)
	if err != nil {
		return nil, err
	}
	return coll.InsertOne(opCtx, doc)
}

// InsertMany inserts docs into collection in one batch, connecting if needed.
func (a *Adapter) InsertMany(ctx context.Context, collection string, docs []any) (*mongo.InsertManyResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	coll, err := a.collection(opCtx, collection)
	if err != nil {
		return nil, err
	}
	return coll.InsertMany(opCtx, docs)
}

// UpdateOne applies update to the first document matching filter.
func (a *Adapter) UpdateOne(ctx context.Context, collection string, filter, update any) (*mongo.UpdateResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	coll, err := a.collection(opCtx, collection)
	if err != nil {
		return nil, err
	}
	return coll.UpdateOne(opCtx, filter, update)
}

// DeleteOne removes the first document matching filter.
func (a *Adapter) DeleteOne(ctx context.Context, collection string, filter any) (*mongo.DeleteResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	coll, err := a.collection(opCtx, collection)
	if err != nil {
		return nil, err
	}
	return coll.DeleteOne(opCtx, filter)
}

// DeleteMany removes every document matching filter.
func (a *Adapter) DeleteMany(ctx context.Context, collection string, filter any) (*mongo.DeleteResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	coll, err := a.collection(opCtx, collection)
	if err != nil {
		return nil, err
	}
	return coll.DeleteMany(opCtx, filter)
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
