package cib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/roach88/cibconf/internal/model"
)

// ImportMode selects how imported objects are merged.
type ImportMode int

const (
	// ImportReplace loads into an empty working copy.
	ImportReplace ImportMode = iota
	// ImportUpdate merges by id.
	ImportUpdate
)

// ParseImportMode parses "replace" or "update".
func ParseImportMode(s string) (ImportMode, error) {
	switch s {
	case "replace":
		return ImportReplace, nil
	case "update":
		return ImportUpdate, nil
	default:
		return 0, fmt.Errorf("unknown import mode %q", s)
	}
}

func (m ImportMode) String() string {
	if m == ImportUpdate {
		return "update"
	}
	return "replace"
}

// ImportReport describes the outcome of an import.
type ImportReport struct {
	Created []string
	// Skipped lists ids already present with identical content.
	Skipped []string
	// Conflicts lists ids present with different content. The stored
	// object is kept.
	Conflicts []*ConflictError
}

// ImportFile loads objects from source, a file path, "-" for the
// session's input, or an http or https URL. The set's raw flag selects the
// format.
//
// In replace mode the working copy must hold no objects. In update mode
// colliding ids are reported individually and the rest is imported. Either
// way the new objects are validated together and nothing is imported
// unless all of them are valid.
func (set *ObjectSet) ImportFile(ctx context.Context, mode ImportMode, source string) (*ImportReport, error) {
	store := set.sess.store
	if err := store.checkSane(); err != nil {
		return nil, err
	}
	if mode == ImportReplace && len(store.order) > 0 {
		return nil, &ConflictError{ID: store.order[0], Reason: "replace import needs an empty configuration"}
	}
	data, err := set.sess.readSource(ctx, source)
	if err != nil {
		return nil, err
	}
	objs, err := set.parse(data)
	if err != nil {
		return nil, err
	}
	report, err := store.merge(objs)
	if err != nil {
		return nil, err
	}
	set.sess.logger.Info("configuration imported",
		"source", source,
		"mode", mode,
		"created", len(report.Created),
		"skipped", len(report.Skipped),
		"conflicts", len(report.Conflicts))
	return report, nil
}

// LoadReplace erases the working copy and imports source in replace mode
// after the operator confirms. On failure the working copy is unchanged.
func (s *Session) LoadReplace(ctx context.Context, source string, raw bool) (*ImportReport, error) {
	if err := s.store.checkSane(); err != nil {
		return nil, err
	}
	if len(s.store.order) > 0 && !s.confirmer.Confirm("Replace the whole configuration?") {
		return nil, ErrDeclined
	}
	saved := s.store.stage()
	if err := s.store.Erase(); err != nil {
		return nil, err
	}
	set := &ObjectSet{sess: s, raw: raw}
	report, err := set.ImportFile(ctx, ImportReplace, source)
	if err != nil {
		s.store.adopt(saved)
		return nil, err
	}
	return report, nil
}

// merge adds objs to the store, skipping identical objects and reporting
// differing ones.
func (s *Store) merge(objs []*model.Object) (*ImportReport, error) {
	if v := duplicateIDs(objs); len(v) > 0 {
		return nil, &ValidationError{Violations: v}
	}
	report := &ImportReport{}
	stage := s.stage()
	var created []*model.Object
	for _, o := range objs {
		if prev, exists := stage.live[o.ID]; exists {
			if prev.Equal(o) {
				report.Skipped = append(report.Skipped, o.ID)
			} else {
				report.Conflicts = append(report.Conflicts, &ConflictError{ID: o.ID, Reason: "differs from the existing object"})
			}
			continue
		}
		if spec := o.Spec(); spec == nil || !s.schema.Supports(o.Kind) {
			return nil, &UnsupportedElementError{Kind: string(o.Kind), Schema: s.schema.Name}
		}
		c := o.Clone()
		stage.insertAt(c, len(stage.order))
		created = append(created, c)
		report.Created = append(report.Created, c.ID)
	}
	if v := stage.validate(created); len(v) > 0 {
		return nil, &ValidationError{Violations: v}
	}
	s.adopt(stage)
	s.changed(created...)
	return report, nil
}

func (s *Session) readSource(ctx context.Context, source string) ([]byte, error) {
	switch {
	case source == "-":
		data, err := io.ReadAll(s.stdin)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return data, nil
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: %s", source, resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		return data, nil
	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", source, err)
		}
		return data, nil
	}
}
