package shadow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/cibconf/internal/model"
)

// ErrPatchUnsupported is returned by Patch when the shadow was opened with
// patch support disabled.
var ErrPatchUnsupported = errors.New("shadow: patch not supported")

// Replace overwrites the whole document in one transaction. The document's
// epoch is ignored; the stored epoch is incremented.
func (s *Shadow) Replace(ctx context.Context, doc *model.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects`); err != nil {
		return fmt.Errorf("replace: clear objects: %w", err)
	}
	for i, o := range doc.Objects {
		body, err := marshalObject(o)
		if err != nil {
			return fmt.Errorf("replace: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO objects (id, kind, body, position) VALUES (?, ?, ?, ?)
		`, o.ID, string(o.Kind), body, i); err != nil {
			return fmt.Errorf("replace: write object %s: %w", o.ID, err)
		}
	}
	if err := writeSetting(ctx, tx, "schema", doc.Schema); err != nil {
		return fmt.Errorf("replace: %w", err)
	}
	if err := s.recordCommit(ctx, tx, "replace", len(doc.Objects), 0); err != nil {
		return fmt.Errorf("replace: %w", err)
	}
	return tx.Commit()
}

// Patch applies an incremental change in one transaction. Existing objects
// keep their position; new ones are appended.
func (s *Shadow) Patch(ctx context.Context, p *model.Patch) error {
	if !s.patch {
		return ErrPatchUnsupported
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("patch: %w", err)
	}
	defer tx.Rollback()

	for _, id := range p.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id); err != nil {
			return fmt.Errorf("patch: delete %s: %w", id, err)
		}
	}
	for _, o := range p.Upserts {
		body, err := marshalObject(o)
		if err != nil {
			return fmt.Errorf("patch: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO objects (id, kind, body, position)
			VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM objects))
			ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, body = excluded.body
		`, o.ID, string(o.Kind), body); err != nil {
			return fmt.Errorf("patch: write object %s: %w", o.ID, err)
		}
	}
	if p.Schema != "" {
		if err := writeSetting(ctx, tx, "schema", p.Schema); err != nil {
			return fmt.Errorf("patch: %w", err)
		}
	}
	if err := s.recordCommit(ctx, tx, "patch", len(p.Upserts), len(p.Deletes)); err != nil {
		return fmt.Errorf("patch: %w", err)
	}
	return tx.Commit()
}

// recordCommit bumps the epoch and appends a history entry describing the
// document as it stands inside tx.
func (s *Shadow) recordCommit(ctx context.Context, tx *sql.Tx, method string, upserts, deletes int) error {
	epoch, err := readEpoch(ctx, tx)
	if err != nil {
		return err
	}
	epoch++
	if err := writeSetting(ctx, tx, "epoch", strconv.FormatInt(epoch, 10)); err != nil {
		return err
	}

	doc, err := readDocument(ctx, tx)
	if err != nil {
		return err
	}
	dgst, err := model.Digest(doc)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commits (id, method, schema_name, epoch, digest, upserts, deletes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ids.Generate(), method, doc.Schema, epoch, dgst.String(), upserts, deletes)
	if err != nil {
		return fmt.Errorf("record commit: %w", err)
	}
	return nil
}

func writeSetting(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}
