// Package ffstorage provides the programmatic API of the storage layer:
// schema sync from model descriptors and temporal repositories over
// PostgreSQL, MySQL and SQL Server.
package ffstorage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/schema"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/temporal"
)

// Client binds one database to the schema manager and the resilience
// settings its repositories share.
type Client struct {
	db      *db.DB
	owned   bool
	manager *schema.Manager

	retry    db.RetryPolicy
	breaker  *db.CircuitBreaker
	metrics  *db.Metrics
	cacheTTL time.Duration
}

// Option configures a Client.
type Option func(*Client) error

// WithRetryPolicy sets the retry policy of every repository.
func WithRetryPolicy(p db.RetryPolicy) Option {
	return func(c *Client) error {
		c.retry = p
		return nil
	}
}

// WithCircuitBreaker shares one breaker between every repository.
func WithCircuitBreaker(cfg db.CircuitBreakerConfig) Option {
	return func(c *Client) error {
		c.breaker = db.NewCircuitBreaker(cfg)
		return nil
	}
}

// WithMetrics registers query metrics and connection pool statistics with
// reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) error {
		c.metrics = db.NewMetrics(reg)
		if err := db.RegisterDBStats(reg, "ffstorage", c.db.DB); err != nil {
			return fmt.Errorf("failed to register pool metrics: %w", err)
		}
		return nil
	}
}

// WithCacheTTL enables the record cache of repositories that do not set
// their own TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cacheTTL = ttl
		return nil
	}
}

// Open connects to the database described by cfg. The client owns the
// connection and closes it on Close.
func Open(ctx context.Context, cfg *db.ConnectionConfig, opts ...Option) (*Client, error) {
	conn, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, err := newClient(conn, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// NewClient wraps an existing pool. The caller keeps ownership of conn.
func NewClient(conn *sql.DB, dialect db.Dialect, opts ...Option) (*Client, error) {
	return newClient(db.Wrap(conn, dialect), opts)
}

func newClient(conn *db.DB, opts []Option) (*Client, error) {
	m, err := schema.NewManager(conn, conn.Dialect)
	if err != nil {
		return nil, err
	}
	c := &Client{
		db:      conn,
		manager: m,
		retry:   db.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Close closes the connection when the client opened it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.db.Close()
}

// DB returns the underlying pool.
func (c *Client) DB() *db.DB { return c.db }

// Dialect returns the backend of the client.
func (c *Client) Dialect() db.Dialect { return c.db.Dialect }

// SyncSchema creates and alters the tables of models and returns the number
// of changes applied, or that would be applied when opts.DryRun is set.
func (c *Client) SyncSchema(ctx context.Context, models []*model.Descriptor, opts SyncOptions) (int, error) {
	return c.manager.SyncSchema(ctx, models, opts)
}

// Plan computes the schema changes for models without running them.
func (c *Client) Plan(ctx context.Context, models []*model.Descriptor, opts SyncOptions) (*Plan, error) {
	return c.manager.Plan(ctx, models, opts)
}

// Apply runs the pending steps of a plan computed by Plan.
func (c *Client) Apply(ctx context.Context, p *Plan) (int, error) {
	return c.manager.Apply(ctx, p)
}

// RepositoryOptions scopes a repository.
type RepositoryOptions struct {
	TenantID  TenantID
	TenantIDs []TenantID
	// CacheTTL overrides the client's cache TTL; negative disables caching.
	CacheTTL time.Duration
}

// Repository returns the repository of desc bound to this client.
func (c *Client) Repository(desc *model.Descriptor, opts RepositoryOptions) (*Repository, error) {
	ttl := c.cacheTTL
	if opts.CacheTTL != 0 {
		ttl = opts.CacheTTL
	}
	return temporal.NewRepository(temporal.Options{
		Descriptor: desc,
		Pool:       c.db,
		Dialect:    c.db.Dialect,
		TenantID:   opts.TenantID,
		TenantIDs:  opts.TenantIDs,
		CacheTTL:   ttl,
		Retry:      c.retry,
		Breaker:    c.breaker,
		Metrics:    c.metrics,
	})
}
