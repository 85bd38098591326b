package graphdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/armchr/graphogm/internal/config"
	"github.com/armchr/graphogm/internal/cypher"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const (
	// Credentials tried once, on the last attempt, when fallback is enabled.
	DefaultURI      = "bolt://localhost:7687"
	DefaultUsername = "neo4j"
	DefaultPassword = "neo4j"

	constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"
)

// ErrConnectionFallback is logged, never returned, when Open only succeeds
// with the default credentials.
var ErrConnectionFallback = errors.New("connected with default credentials")

// DriverFactory creates a driver for the given target and credentials.
type DriverFactory func(uri, username, password string, configure func(*neo4j.Config)) (neo4j.DriverWithContext, error)

func newNeo4jDriver(uri, username, password string, configure func(*neo4j.Config)) (neo4j.DriverWithContext, error) {
	return neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""), configure)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDriverFactory replaces the driver constructor. Used by tests.
func WithDriverFactory(factory DriverFactory) Option {
	return func(m *Manager) {
		m.newDriver = factory
	}
}

// Manager is the process-wide handle on the graph store. It is created once
// at startup, opened, passed to every component that queries the store, and
// closed at shutdown. It is safe for concurrent use; concurrency is bounded
// by the driver's connection pool.
type Manager struct {
	cfg       config.Neo4jConfig
	logger    *zap.Logger
	newDriver DriverFactory

	mu     sync.RWMutex
	driver neo4j.DriverWithContext
}

// NewManager creates a Manager. cfg should already have defaults applied.
func NewManager(cfg config.Neo4jConfig, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		newDriver: newNeo4jDriver,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) configure(c *neo4j.Config) {
	if m.cfg.MaxConnectionLifetime > 0 {
		c.MaxConnectionLifetime = m.cfg.MaxConnectionLifetime
	}
	if m.cfg.MaxConnectionPoolSize > 0 {
		c.MaxConnectionPoolSize = m.cfg.MaxConnectionPoolSize
	}
	if m.cfg.ConnectionAcquisitionTimeout > 0 {
		c.ConnectionAcquisitionTimeout = m.cfg.ConnectionAcquisitionTimeout
	}
	if m.cfg.ConnectionTimeout > 0 {
		c.SocketConnectTimeout = m.cfg.ConnectionTimeout
	}
	if m.cfg.MaxTransactionRetryTime > 0 {
		c.MaxTransactionRetryTime = m.cfg.MaxTransactionRetryTime
	}
}

// Open connects to the store. It tries the configured credentials up to
// InitialConnectionAttempts times with a fixed backoff. When every attempt
// fails and FallbackToDefault is set, the default local credentials are
// tried once; success there is logged as a warning.
func (m *Manager) Open(ctx context.Context) error {
	attempts := m.cfg.InitialConnectionAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		driver, err := m.connect(ctx, m.cfg.URI, m.cfg.Username, m.cfg.Password)
		if err == nil {
			m.setDriver(driver)
			m.logger.Info("Connected to graph store",
				zap.String("uri", m.cfg.URI),
				zap.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		m.logger.Warn("Graph store connection attempt failed",
			zap.String("uri", m.cfg.URI),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(m.cfg.RetryBackoff):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrConnection, ctx.Err())
		}
	}

	if m.cfg.FallbackToDefault {
		driver, err := m.connect(ctx, DefaultURI, DefaultUsername, DefaultPassword)
		if err == nil {
			m.setDriver(driver)
			m.logger.Warn("Graph store reached only with default credentials",
				zap.String("uri", DefaultURI),
				zap.Error(ErrConnectionFallback))
			return nil
		}
		m.logger.Error("Fallback connection failed", zap.String("uri", DefaultURI), zap.Error(err))
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrConnection, attempts, lastErr)
}

func (m *Manager) connect(ctx context.Context, uri, username, password string) (neo4j.DriverWithContext, error) {
	driver, err := m.newDriver(uri, username, password, m.configure)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return driver, nil
}

func (m *Manager) setDriver(driver neo4j.DriverWithContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driver = driver
}

func (m *Manager) getDriver() (neo4j.DriverWithContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.driver == nil {
		return nil, fmt.Errorf("%w: manager is not open", ErrConnection)
	}
	return m.driver, nil
}

// VerifyConnectivity checks if the database connection is working
func (m *Manager) VerifyConnectivity(ctx context.Context) error {
	driver, err := m.getDriver()
	if err != nil {
		return err
	}
	return driver.VerifyConnectivity(ctx)
}

// Close closes the database connection. Closing a Manager that was never
// opened is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.driver == nil {
		return nil
	}
	err := m.driver.Close(ctx)
	m.driver = nil
	return err
}

// Session opens a session of the given mode. The caller must Close it;
// prefer WithSession, which does so on every exit path.
func (m *Manager) Session(ctx context.Context, mode Mode) (*Session, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: invalid access mode %d", ErrTransaction, mode)
	}
	driver, err := m.getDriver()
	if err != nil {
		return nil, err
	}

	accessMode := neo4j.AccessModeRead
	if mode == WriteMode {
		accessMode = neo4j.AccessModeWrite
	}
	return &Session{
		mode:    mode,
		session: driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: accessMode}),
		logger:  m.logger,
	}, nil
}

// WithSession runs fn with a fresh session and closes the session when fn
// returns or panics.
func (m *Manager) WithSession(ctx context.Context, mode Mode, fn func(*Session) error) error {
	session, err := m.Session(ctx, mode)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	return fn(session)
}

// ExecuteRead executes a read-only Cypher query in its own session and transaction
func (m *Manager) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	return m.execute(ctx, ReadMode, query, params)
}

// ExecuteWrite executes a write Cypher query in its own session and transaction
func (m *Manager) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	return m.execute(ctx, WriteMode, query, params)
}

func (m *Manager) execute(ctx context.Context, mode Mode, query string, params map[string]any) ([]Record, error) {
	if ce := m.logger.Check(zap.DebugLevel, "Executing query"); ce != nil {
		ce.Write(zap.Stringer("mode", mode), zap.String("query", cypher.Query{Text: query, Params: params}.Inline()))
	}

	var records []Record
	err := m.WithSession(ctx, mode, func(s *Session) error {
		var err error
		records, err = s.Run(ctx, mode, query, params)
		return err
	})
	if err != nil {
		m.logger.Error("Failed to execute query",
			zap.Stringer("mode", mode),
			zap.String("query", query),
			zap.Error(err))
		return nil, err
	}
	return records, nil
}

// classifyError tags store-side constraint failures so callers can tell
// them apart from other query errors.
func classifyError(mode Mode, err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == constraintViolationCode {
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	return fmt.Errorf("failed to execute %s query: %w", mode, err)
}
