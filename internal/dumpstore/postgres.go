package dumpstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/postgres"
)

const defaultDumpName = "default"

// PostgresStore keeps named dumps as bytea rows of one table, created on
// first use.
type PostgresStore struct {
	client   *postgres.Client
	table    string
	name     string
	location string
}

// NewPostgresStore connects using the DSN in location. The "table" and
// "name" query parameters select the row and are stripped before the DSN
// reaches lib/pq.
func NewPostgresStore(ctx context.Context, location string, cfg config.PostgresConfig) (*PostgresStore, error) {
	dsn, table, name, err := parsePostgresLocation(location, cfg.Table)
	if err != nil {
		return nil, err
	}
	client, err := postgres.New(ctx, dsn, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{client: client, table: table, name: name, location: Redact(location)}
	if err := s.ensureTable(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func parsePostgresLocation(location, defaultTable string) (dsn, table, name string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: postgres location %s is not a valid URL", apperrors.ErrInvalidInput, Redact(location))
	}
	q := u.Query()
	table = q.Get("table")
	if table == "" {
		table = defaultTable
	}
	if table == "" {
		table = "bloom_dumps"
	}
	name = q.Get("name")
	if name == "" {
		name = defaultDumpName
	}
	q.Del("table")
	q.Del("name")
	u.RawQuery = q.Encode()
	return u.String(), table, name, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name       TEXT PRIMARY KEY,
		data       BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, pq.QuoteIdentifier(s.table))
	if _, err := s.client.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating dump table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) Location() string { return s.location }

func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE name = $1`, pq.QuoteIdentifier(s.table))
	var data []byte
	err := s.client.DB.QueryRowContext(ctx, query, s.name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: postgres dump %q in %s", apperrors.ErrDumpNotFound, s.name, s.table)
		}
		return nil, fmt.Errorf("loading postgres dump %q: %w", s.name, err)
	}
	return data, nil
}

func (s *PostgresStore) Save(ctx context.Context, data []byte) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (name, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		pq.QuoteIdentifier(s.table))
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt, s.name, data); err != nil {
			return fmt.Errorf("saving postgres dump %q: %w", s.name, err)
		}
		return nil
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

func (s *PostgresStore) Close() error { return s.client.Close() }
