package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/retry"
	"github.com/heliowatt/solarstream/pkg/utils"
)

// ClickHouse is the durable Store backend. Accounts are kept in a
// ReplacingMergeTree keyed by email (latest updated_at wins, which turns
// inserts into upserts); samples are an append-only MergeTree ordered by
// (email, timestamp) so range queries read a contiguous slice.
type ClickHouse struct {
	Logger *zap.Logger
	Db     driver.Conn
	dbName string
}

// NewClickHouse connects using CLICKHOUSE_ADDR and ensures the database and
// tables exist. The initial connection retries with backoff since the store
// is typically racing its container at startup.
func NewClickHouse(ctx context.Context, logger *zap.Logger) (*ClickHouse, error) {
	dsn := utils.Env("CLICKHOUSE_ADDR", "clickhouse://localhost:9000?sslmode=disable")
	dbName := utils.Env("SOLARSTREAM_DB", "solarstream")

	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	options.MaxOpenConns = utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 10)
	options.MaxIdleConns = utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 5)
	options.DialTimeout = 10 * time.Second
	options.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}

	ch := &ClickHouse{Logger: logger, dbName: dbName}

	connErr := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		conn, openErr := clickhouse.Open(options)
		if openErr != nil {
			return fmt.Errorf("open clickhouse connection: %w", openErr)
		}
		if pingErr := conn.Ping(ctx); pingErr != nil {
			return fmt.Errorf("ping clickhouse: %w", pingErr)
		}
		ch.Db = conn
		return nil
	})
	if connErr != nil {
		return nil, connErr
	}

	if err := ch.initialize(ctx); err != nil {
		return nil, err
	}

	logger.Info("clickhouse store ready", zap.String("database", dbName))
	return ch, nil
}

func (c *ClickHouse) initialize(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, c.dbName),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.accounts (
				email String,
				password_hash String,
				total_savings Float64,
				created_at DateTime64(3),
				updated_at DateTime64(3)
			) ENGINE = ReplacingMergeTree(updated_at)
			ORDER BY (email)
		`, c.dbName),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.samples (
				email String,
				value Float64,
				category LowCardinality(String),
				timestamp DateTime64(3)
			) ENGINE = MergeTree
			ORDER BY (email, timestamp)
		`, c.dbName),
	}
	for _, stmt := range stmts {
		if err := c.Db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

func (c *ClickHouse) CreateAccount(ctx context.Context, email string, passwordHash []byte) (*Account, error) {
	if _, err := c.GetAccount(ctx, email); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	acct := &Account{Email: email, PasswordHash: passwordHash, CreatedAt: now}
	if err := c.upsertAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (c *ClickHouse) upsertAccount(ctx context.Context, acct *Account) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.accounts (email, password_hash, total_savings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.dbName)
	return c.Db.Exec(ctx, query,
		acct.Email, string(acct.PasswordHash), acct.TotalSavings, acct.CreatedAt, time.Now().UTC())
}

func (c *ClickHouse) GetAccount(ctx context.Context, email string) (*Account, error) {
	query := fmt.Sprintf(`
		SELECT email, password_hash, total_savings, created_at
		FROM %s.accounts FINAL
		WHERE email = ?
	`, c.dbName)

	var (
		acct Account
		hash string
	)
	row := c.Db.QueryRow(ctx, query, email)
	if err := row.Scan(&acct.Email, &hash, &acct.TotalSavings, &acct.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	acct.PasswordHash = []byte(hash)
	return &acct, nil
}

func (c *ClickHouse) ListEmails(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT email FROM %s.accounts ORDER BY email`, c.dbName)
	rows, err := c.Db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (c *ClickHouse) AppendSample(ctx context.Context, email string, s Sample) (float64, error) {
	acct, err := c.GetAccount(ctx, email)
	if err != nil {
		return 0, err
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s.samples (email, value, category, timestamp)
		VALUES (?, ?, ?, ?)
	`, c.dbName)
	if err := c.Db.Exec(ctx, insert, email, s.Value, string(s.Category), s.Timestamp); err != nil {
		return 0, fmt.Errorf("insert sample: %w", err)
	}

	// Recompute from the full history rather than adding to the cached value.
	total, err := c.solarTotal(ctx, email)
	if err != nil {
		return 0, err
	}

	acct.TotalSavings = total
	if err := c.upsertAccount(ctx, acct); err != nil {
		return 0, fmt.Errorf("update total: %w", err)
	}
	return total, nil
}

func (c *ClickHouse) solarTotal(ctx context.Context, email string) (float64, error) {
	query := fmt.Sprintf(`
		SELECT sum(value) FROM %s.samples
		WHERE email = ? AND category = ?
	`, c.dbName)
	var total float64
	if err := c.Db.QueryRow(ctx, query, email, string(CategorySolar)).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum solar samples: %w", err)
	}
	return total, nil
}

func (c *ClickHouse) SetTotalSavings(ctx context.Context, email string, total float64) error {
	acct, err := c.GetAccount(ctx, email)
	if err != nil {
		return err
	}
	acct.TotalSavings = total
	return c.upsertAccount(ctx, acct)
}

func (c *ClickHouse) SamplesSince(ctx context.Context, email string, cutoff time.Time) ([]Sample, error) {
	if _, err := c.GetAccount(ctx, email); err != nil {
		return nil, err
	}
	// A zero cutoff means the full history; the zero time predates the
	// DateTime64 range so it cannot be used as a predicate value.
	if cutoff.IsZero() {
		query := fmt.Sprintf(`
			SELECT value, category, timestamp FROM %s.samples
			WHERE email = ?
			ORDER BY timestamp ASC
		`, c.dbName)
		return c.querySamples(ctx, query, email)
	}
	query := fmt.Sprintf(`
		SELECT value, category, timestamp FROM %s.samples
		WHERE email = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`, c.dbName)
	return c.querySamples(ctx, query, email, cutoff)
}

func (c *ClickHouse) RecentSamples(ctx context.Context, email string, n int) ([]Sample, error) {
	if _, err := c.GetAccount(ctx, email); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT value, category, timestamp FROM (
			SELECT value, category, timestamp FROM %s.samples
			WHERE email = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC
	`, c.dbName)
	return c.querySamples(ctx, query, email, n)
}

func (c *ClickHouse) querySamples(ctx context.Context, query string, args ...any) ([]Sample, error) {
	rows, err := c.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		var (
			s   Sample
			cat string
		)
		if err := rows.Scan(&s.Value, &cat, &s.Timestamp); err != nil {
			return nil, err
		}
		s.Category = Category(cat)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (c *ClickHouse) TotalSavings(ctx context.Context, email string) (float64, error) {
	acct, err := c.GetAccount(ctx, email)
	if err != nil {
		return 0, err
	}
	return acct.TotalSavings, nil
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func (c *ClickHouse) Ping(ctx context.Context) error { return c.Db.Ping(ctx) }

func (c *ClickHouse) Close() error { return c.Db.Close() }
