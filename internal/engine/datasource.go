package engine

import (
	"database/sql"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/AhmedPho/blazer/internal/adapter"
)

var (
	// ErrEmptyConnectionURL is returned at construction when no connection
	// URL is configured outside the permissive development mode.
	ErrEmptyConnectionURL = errors.New("connection url is required")

	// ErrTimeoutNotSupported is returned when a timeout is requested for a
	// dialect that cannot enforce one. This is a configuration error and
	// propagates as a hard failure rather than a Result error.
	ErrTimeoutNotSupported = errors.New("timeout not supported for this adapter")
)

// DataSourceConfig describes one configured backend. UseTransaction defaults
// to true when nil.
type DataSourceConfig struct {
	ID             string
	Name           string
	Adapter        adapter.Family
	URL            string
	Timeout        time.Duration
	Schemas        []string
	Database       string
	UseTransaction *bool
	CacheMode      CacheMode
	CacheExpiry    time.Duration
	SlowThreshold  time.Duration
	MaxOpenConns   int
	MaxIdleConns   int

	// AllowEmptyURL permits construction without a URL (development mode);
	// execution then fails per statement instead.
	AllowEmptyURL bool
}

// DataSource owns exactly one backend connection pool for its lifetime.
// Identity and settings are immutable after construction; Reconnect swaps the
// pool without changing identity.
type DataSource struct {
	id             string
	name           string
	family         adapter.Family
	url            string
	timeout        time.Duration
	schemas        []string
	database       string
	useTransaction bool
	cache          CacheConfig
	maxOpenConns   int
	maxIdleConns   int

	mu sync.RWMutex
	db *sql.DB
}

func NewDataSource(cfg DataSourceConfig) (*DataSource, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, errors.New("data source id is required")
	}
	if strings.TrimSpace(cfg.URL) == "" && !cfg.AllowEmptyURL {
		return nil, fmt.Errorf("data source %q: %w", cfg.ID, ErrEmptyConnectionURL)
	}
	if cfg.Timeout > 0 && !cfg.Adapter.SupportsTimeout() {
		return nil, fmt.Errorf("data source %q (%s): %w", cfg.ID, cfg.Adapter, ErrTimeoutNotSupported)
	}

	useTransaction := true
	if cfg.UseTransaction != nil {
		useTransaction = *cfg.UseTransaction
	}

	ds := &DataSource{
		id:             cfg.ID,
		name:           cfg.Name,
		family:         cfg.Adapter,
		url:            cfg.URL,
		timeout:        cfg.Timeout,
		schemas:        append([]string(nil), cfg.Schemas...),
		database:       cfg.Database,
		useTransaction: useTransaction,
		cache:          resolveCacheConfig(cfg.CacheMode, cfg.CacheExpiry, cfg.SlowThreshold),
		maxOpenConns:   cfg.MaxOpenConns,
		maxIdleConns:   cfg.MaxIdleConns,
	}
	if ds.database == "" {
		ds.database = databaseFromURL(cfg.URL)
	}
	if ds.name == "" {
		ds.name = ds.id
	}

	if ds.url != "" {
		db, err := ds.open()
		if err != nil {
			return nil, err
		}
		ds.db = db
	}
	return ds, nil
}

func (ds *DataSource) open() (*sql.DB, error) {
	db, err := sql.Open(ds.family.DriverName(), ds.url)
	if err != nil {
		return nil, fmt.Errorf("open data source %q: %w", ds.id, err)
	}
	if ds.maxOpenConns > 0 {
		db.SetMaxOpenConns(ds.maxOpenConns)
	}
	if ds.maxIdleConns > 0 {
		db.SetMaxIdleConns(ds.maxIdleConns)
	}
	return db, nil
}

func (ds *DataSource) ID() string                 { return ds.id }
func (ds *DataSource) Name() string               { return ds.name }
func (ds *DataSource) Family() adapter.Family     { return ds.family }
func (ds *DataSource) CacheSettings() CacheConfig { return ds.cache }
func (ds *DataSource) Database() string           { return ds.database }

// DB returns the current connection pool, which may be nil for a
// development-mode data source without a URL.
func (ds *DataSource) DB() *sql.DB {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.db
}

// Reconnect replaces the underlying connection pool without changing the
// data source's identity.
func (ds *DataSource) Reconnect() error {
	if ds.url == "" {
		return fmt.Errorf("data source %q: %w", ds.id, ErrEmptyConnectionURL)
	}
	db, err := ds.open()
	if err != nil {
		return err
	}
	ds.mu.Lock()
	old := ds.db
	ds.db = db
	ds.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (ds *DataSource) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.db == nil {
		return nil
	}
	err := ds.db.Close()
	ds.db = nil
	return err
}

// SchemaList returns the schemas queried for metadata, falling back to the
// dialect default when none are configured.
func (ds *DataSource) SchemaList() []string {
	if len(ds.schemas) > 0 {
		return ds.schemas
	}
	return []string{ds.family.DefaultSchema(ds.database)}
}

func databaseFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := neturl.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Path, "/")
}

// setDB installs a pool directly. Test hook for sqlmock-backed sources.
func (ds *DataSource) setDB(db *sql.DB) {
	ds.mu.Lock()
	ds.db = db
	ds.mu.Unlock()
}
