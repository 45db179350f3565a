// Package mysql stores profiles and listings in MySQL with JSON columns.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

const (
	defaultMaxOpenConns    = 50
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = time.Hour

	// linkChunkSize bounds the IN list of KnownLinks queries.
	linkChunkSize = 200
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS business_profiles (
		user_id VARCHAR(191) NOT NULL PRIMARY KEY,
		document JSON NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rfp_listings (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		title TEXT NOT NULL,
		agency VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		naics_codes JSON NOT NULL,
		due_date DATETIME(6) NOT NULL,
		link VARCHAR(768) NOT NULL,
		posted_date DATETIME(6) NOT NULL,
		set_aside JSON NOT NULL,
		keywords JSON NOT NULL,
		embedding JSON NULL,
		status VARCHAR(32) NOT NULL,
		source VARCHAR(64) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		INDEX idx_rfp_listings_open (status, due_date),
		INDEX idx_rfp_listings_link (link)
	)`,
}

type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sql.DB
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := parseDSN(opts.DSN)
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	applyPool(db, opts)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return &Store{db: db}, nil
}

func parseDSN(dsn string) (*mysql.Config, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("mysql dsn is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true

	return cfg, nil
}

func applyPool(db *sql.DB, opts Options) {
	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}

	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}

	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProfile(ctx context.Context, userID string) (map[string]any, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM business_profiles WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select profile: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("decode profile document: %w", err)
	}

	return doc, true, nil
}

func (s *Store) PutProfile(ctx context.Context, userID string, doc map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode profile document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO business_profiles (user_id, document, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE document = VALUES(document), updated_at = VALUES(updated_at)`,
		userID, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	return nil
}

func (s *Store) ActiveListings(ctx context.Context, now time.Time, limit int) ([]*rfp.Listing, error) {
	query := `SELECT id, title, agency, description, naics_codes, due_date, link, posted_date,
		set_aside, keywords, embedding, status, source, created_at
		FROM rfp_listings WHERE status = ? AND due_date > ? ORDER BY due_date, id`
	args := []any{rfp.StatusActive, now.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	defer rows.Close()

	listings := make([]*rfp.Listing, 0)
	for rows.Next() {
		var (
			l                                   rfp.Listing
			naics, setAside, keywords, embedded []byte
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.Agency, &l.Description, &naics, &l.DueDate, &l.Link,
			&l.PostedDate, &setAside, &keywords, &embedded, &l.Status, &l.Source, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}

		if err := decodeColumns(&l, naics, setAside, keywords, embedded); err != nil {
			return nil, fmt.Errorf("listing %s: %w", l.ID, err)
		}
		listings = append(listings, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	return listings, nil
}

func (s *Store) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE rfp_listings SET embedding = ? WHERE id = ?`, raw, id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", rfp.ErrListingNotFound, id)
	}

	return nil
}

func (s *Store) InsertListings(ctx context.Context, listings []*rfp.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rfp_listings
		(id, title, agency, description, naics_codes, due_date, link, posted_date,
		set_aside, keywords, embedding, status, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range listings {
		args, err := insertArgs(l)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert listing %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}

	return nil
}

func (s *Store) KnownLinks(ctx context.Context, links []string) (map[string]bool, error) {
	known := make(map[string]bool)

	for _, batch := range chunk(links, linkChunkSize) {
		args := make([]any, len(batch))
		for i, link := range batch {
			args[i] = link
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT DISTINCT link FROM rfp_listings WHERE link IN (`+placeholders(len(batch))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("select links: %w", err)
		}

		for rows.Next() {
			var link string
			if err := rows.Scan(&link); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan link: %w", err)
			}
			known[link] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate links: %w", err)
		}
	}

	return known, nil
}

func insertArgs(l *rfp.Listing) ([]any, error) {
	if l == nil || l.ID == "" {
		return nil, errors.New("listing id is required")
	}

	naics, err := jsonList(l.NAICSCodes)
	if err != nil {
		return nil, err
	}
	setAside, err := jsonList(l.SetAside)
	if err != nil {
		return nil, err
	}
	keywords, err := jsonList(l.Keywords)
	if err != nil {
		return nil, err
	}

	var embedding any
	if l.HasEmbedding() {
		raw, err := json.Marshal(l.Embedding)
		if err != nil {
			return nil, err
		}
		embedding = raw
	}

	return []any{
		l.ID, l.Title, l.Agency, l.Description, naics, l.DueDate.UTC(), l.Link, l.PostedDate.UTC(),
		setAside, keywords, embedding, l.Status, l.Source, l.CreatedAt.UTC(),
	}, nil
}

func decodeColumns(l *rfp.Listing, naics, setAside, keywords, embedding []byte) error {
	targets := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"naics_codes", naics, &l.NAICSCodes},
		{"set_aside", setAside, &l.SetAside},
		{"keywords", keywords, &l.Keywords},
		{"embedding", embedding, &l.Embedding},
	}

	for _, t := range targets {
		if len(t.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(t.raw, t.dst); err != nil {
			return fmt.Errorf("decode %s: %w", t.name, err)
		}
	}

	return nil
}

// jsonList encodes nil slices as [] so NOT NULL columns accept them.
func jsonList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func chunk(values []string, size int) [][]string {
	var chunks [][]string
	for size < len(values) {
		values, chunks = values[size:], append(chunks, values[:size])
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}
