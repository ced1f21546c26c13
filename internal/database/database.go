// Package database owns the single connection to the hosted Postgres project.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"postboard/internal/config"
	"postboard/internal/models"
	"postboard/internal/observability"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrMissingURL is returned when SUPABASE_URL is not configured.
	ErrMissingURL = errors.New("supabase URL is required")
	// ErrMissingKey is returned when SUPABASE_KEY is not configured.
	ErrMissingKey = errors.New("supabase key is required")
)

// Gateway holds the process-wide database handle. The handle is opened once and
// is read-only afterwards, so it can be shared by concurrent requests.
type Gateway struct {
	cfg    *config.Config
	dialer func(dsn string) gorm.Dialector

	once sync.Once
	db   *gorm.DB
	err  error
}

// NewGateway validates the connection settings and returns an unopened gateway.
func NewGateway(cfg *config.Config) (*Gateway, error) {
	if cfg == nil || strings.TrimSpace(cfg.SupabaseURL) == "" {
		return nil, ErrMissingURL
	}
	if strings.TrimSpace(cfg.SupabaseKey) == "" {
		return nil, ErrMissingKey
	}
	return &Gateway{cfg: cfg, dialer: postgres.Open}, nil
}

// NewGatewayWithDB wraps an already-open handle. Tests use it with sqlmock.
func NewGatewayWithDB(db *gorm.DB) *Gateway {
	g := &Gateway{db: db}
	g.once.Do(func() {})
	return g
}

// Open connects to the database. Only the first call does any work; later calls
// return the first call's result.
func (g *Gateway) Open(ctx context.Context) error {
	g.once.Do(func() {
		g.db, g.err = g.connect(ctx)
	})
	return g.err
}

// Client returns the shared handle, or nil if Open has not succeeded.
func (g *Gateway) Client() *gorm.DB {
	return g.db
}

// Ping verifies the database is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	if g.db == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *Gateway) connect(ctx context.Context) (*gorm.DB, error) {
	dsn, err := BuildDSN(g.cfg.SupabaseURL, g.cfg.SupabaseKey, g.cfg.DBSSLMode)
	if err != nil {
		return nil, err
	}

	gormLogger := &CustomGormLogger{
		logger: observability.Logger,
		Config: logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	}

	db, err := gorm.Open(g.dialer(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	observability.Logger.Info("Database connected successfully")

	if g.cfg.AutoMigrate && !g.cfg.IsProduction() {
		if err := db.WithContext(ctx).AutoMigrate(&models.Post{}); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		observability.Logger.Info("Database migration completed")
	}

	return db, nil
}

// BuildDSN turns the configured project URL and key into a Postgres DSN.
//
// A postgres:// or postgresql:// URL is used as-is, with key as its password.
// A project URL such as https://<ref>.supabase.co maps to the project's direct
// database host, db.<ref>.supabase.co.
func BuildDSN(rawURL, key, sslMode string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrMissingURL
	}
	if key == "" {
		return "", ErrMissingKey
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid supabase URL: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		user := "postgres"
		if u.User != nil && u.User.Username() != "" {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, key)
		if u.Path == "" || u.Path == "/" {
			u.Path = "/postgres"
		}
		q := u.Query()
		if sslMode != "" {
			q.Set("sslmode", sslMode)
		} else if q.Get("sslmode") == "" {
			q.Set("sslmode", "require")
		}
		u.RawQuery = q.Encode()
		return u.String(), nil

	case "http", "https":
		host := u.Hostname()
		if host == "" {
			return "", fmt.Errorf("invalid supabase URL %q: missing host", rawURL)
		}
		if !strings.HasPrefix(host, "db.") {
			host = "db." + host
		}
		if sslMode == "" {
			sslMode = "require"
		}
		dsn := &url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword("postgres", key),
			Host:     host + ":5432",
			Path:     "/postgres",
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		return dsn.String(), nil

	default:
		return "", fmt.Errorf("unsupported supabase URL scheme %q", u.Scheme)
	}
}
