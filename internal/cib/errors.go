package cib

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/schema"
)

// SanityError is returned by every mutating operation once the session
// failed to load the live configuration.
type SanityError struct {
	Cause error
}

func (e *SanityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration is not sane: %v", e.Cause)
	}
	return "configuration is not sane"
}

func (e *SanityError) Unwrap() error { return e.Cause }

// NotFoundError lists every id or selector that did not resolve.
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", strings.Join(e.IDs, ", "))
}

// ValidationError carries every structural problem found in one request.
type ValidationError struct {
	Violations []schema.Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// VerificationError reports a verification run whose result blocks a
// commit.
type VerificationError struct {
	Report Report
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: %d structural problem(s), %d warning(s)",
		e.Report.Structural, e.Report.Warnings)
}

// ConflictError reports an id collision or, with Concurrent set, a live
// configuration that changed after the session read it.
type ConflictError struct {
	ID         string
	Concurrent bool
	Reason     string
}

func (e *ConflictError) Error() string {
	if e.Concurrent {
		return "concurrent modification: " + e.Reason
	}
	if e.Reason != "" {
		return fmt.Sprintf("conflict on %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("object %s already exists", e.ID)
}

// NotMemberError is returned by group edits naming an id that is not a
// member of the group.
type NotMemberError struct {
	Group  string
	Member string
}

func (e *NotMemberError) Error() string {
	return fmt.Sprintf("%s is not a member of group %s", e.Member, e.Group)
}

// UnsupportedElementError is returned for kinds the active schema does not
// permit.
type UnsupportedElementError struct {
	Kind   string
	Schema string
}

func (e *UnsupportedElementError) Error() string {
	return fmt.Sprintf("element %s is not supported by schema %s", e.Kind, e.Schema)
}

// ParseError reports configuration text that could not be parsed.
type ParseError = model.ParseError

// ReferenceError refuses a deletion: each listed id is still referenced by
// the objects mapped to it.
type ReferenceError struct {
	ReferencedBy map[string][]string
}

func (e *ReferenceError) Error() string {
	ids := make([]string, 0, len(e.ReferencedBy))
	for id := range e.ReferencedBy {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s is referenced by %s", id, strings.Join(e.ReferencedBy[id], ", ")))
	}
	return "cannot delete: " + strings.Join(parts, "; ")
}

// CommitRejectedError is returned when a commit stopped because of a
// conflict or a failed verification and the caller declined to force it.
type CommitRejectedError struct {
	Err error
}

func (e *CommitRejectedError) Error() string {
	return fmt.Sprintf("commit rejected: %v", e.Err)
}

func (e *CommitRejectedError) Unwrap() error { return e.Err }

// ErrUnexpectedSchema is returned by a schema upgrade when the live schema
// is not the expected legacy version.
var ErrUnexpectedSchema = errors.New("unexpected schema version")

// ErrAlreadyUpgraded is returned by a second schema upgrade in one session.
var ErrAlreadyUpgraded = errors.New("schema already upgraded in this session")

// ErrDeclined is returned when the operator answers no to a confirmation.
var ErrDeclined = errors.New("declined by operator")

// IsConcurrentModification reports whether err stems from a live
// configuration changed by another writer.
func IsConcurrentModification(err error) bool {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Concurrent
	}
	return false
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// violation builds a Violation for an id.
func violation(id, format string, args ...any) schema.Violation {
	return schema.Violation{ID: id, Message: fmt.Sprintf(format, args...)}
}
