package shadow

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/roach88/cibconf/internal/model"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Commit is one entry of the commit history.
type Commit struct {
	Seq     int64
	ID      string
	Method  string
	Schema  string
	Epoch   int64
	Digest  string
	Upserts int
	Deletes int
}

// Read returns the current document. Objects are ordered by position.
func (s *Shadow) Read(ctx context.Context) (*model.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	defer tx.Rollback()

	return readDocument(ctx, tx)
}

// SchemaVersion returns the schema name of the current document.
func (s *Shadow) SchemaVersion(ctx context.Context) (string, error) {
	return readSetting(ctx, s.db, "schema")
}

// Epoch returns the number of writes applied so far.
func (s *Shadow) Epoch(ctx context.Context) (int64, error) {
	return readEpoch(ctx, s.db)
}

// History returns every recorded commit, oldest first.
func (s *Shadow) History(ctx context.Context) ([]Commit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, method, schema_name, epoch, digest, upserts, deletes
		FROM commits
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	commits := []Commit{}
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.Seq, &c.ID, &c.Method, &c.Schema, &c.Epoch, &c.Digest, &c.Upserts, &c.Deletes); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}

func readDocument(ctx context.Context, q querier) (*model.Document, error) {
	schema, err := readSetting(ctx, q, "schema")
	if err != nil {
		return nil, err
	}
	epoch, err := readEpoch(ctx, q)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT body FROM objects
		ORDER BY position ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	doc := &model.Document{Schema: schema, Epoch: epoch, Objects: []*model.Object{}}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		o, err := unmarshalObject(body)
		if err != nil {
			return nil, err
		}
		doc.Objects = append(doc.Objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return doc, nil
}

func readSetting(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

func readEpoch(ctx context.Context, q querier) (int64, error) {
	raw, err := readSetting(ctx, q, "epoch")
	if err != nil {
		return 0, err
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse epoch %q: %w", raw, err)
	}
	return epoch, nil
}
