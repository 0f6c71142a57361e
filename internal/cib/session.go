package cib

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/roach88/cibconf/internal/extproc"
	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/prefs"
	"github.com/roach88/cibconf/internal/schema"
	"github.com/roach88/cibconf/internal/simulate"
)

// Coordinator is the live configuration authority a session commits to.
// It is implemented by shadow.Shadow.
type Coordinator interface {
	Read(ctx context.Context) (*model.Document, error)
	SchemaVersion(ctx context.Context) (string, error)
	Replace(ctx context.Context, doc *model.Document) error
	Patch(ctx context.Context, p *model.Patch) error
	SupportsPatch() bool
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// denyAll answers no to every question.
var denyAll = ConfirmFunc(func(string) bool { return false })

// Session is one logical mutator of a configuration: the working copy, its
// baseline and the commit state machine. Sessions are not safe for
// concurrent use; independent sessions share nothing.
type Session struct {
	id        string
	coord     Coordinator
	registry  *schema.Registry
	prefs     prefs.Preferences
	logger    *slog.Logger
	confirmer Confirmer
	simulator *simulate.Adapter
	runner    extproc.Runner
	lookPath  extproc.LookPathFunc
	metrics   *Metrics
	stdin     io.Reader
	stdout    io.Writer

	store    *Store
	baseline *Baseline
	state    CommitState
	upgraded bool
}

// Option configures a Session.
type Option func(*Session)

// WithPreferences sets the preferences. Defaults to prefs.Default().
func WithPreferences(p prefs.Preferences) Option {
	return func(s *Session) { s.prefs = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithConfirmer sets who answers confirmation prompts. Without one every
// prompt is declined.
func WithConfirmer(c Confirmer) Option {
	return func(s *Session) { s.confirmer = c }
}

// WithSimulator sets the simulation adapter instead of resolving one at
// initialization.
func WithSimulator(a *simulate.Adapter) Option {
	return func(s *Session) { s.simulator = a }
}

// WithSchemaRegistry sets the schema registry instead of loading the
// embedded one.
func WithSchemaRegistry(r *schema.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRunner sets the runner for external programs.
func WithRunner(r extproc.Runner) Option {
	return func(s *Session) { s.runner = r }
}

// WithLookPath sets how external programs are located.
func WithLookPath(f extproc.LookPathFunc) Option {
	return func(s *Session) { s.lookPath = f }
}

// WithIO sets the streams used for "-" sources and destinations.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Session) { s.stdin, s.stdout = in, out }
}

// NewSession creates a session bound to a coordinator. Call Initialize
// before using it.
func NewSession(coord Coordinator, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		coord:     coord,
		prefs:     prefs.Default(),
		logger:    slog.Default(),
		confirmer: denyAll,
		runner:    extproc.ExecRunner{},
		lookPath:  extproc.DefaultLookPath,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	s.store = newStore(s.registry, s.prefs, s.logger)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Store returns the working copy.
func (s *Session) Store() *Store {
	return s.store
}

// Baseline returns the configuration last read from the coordinator. It is
// nil before a successful Initialize.
func (s *Session) Baseline() *Baseline {
	return s.baseline
}

// Preferences returns the session preferences.
func (s *Session) Preferences() prefs.Preferences {
	return s.prefs
}

// Schemas returns the schema registry. It is nil before Initialize unless
// one was supplied with WithSchemaRegistry.
func (s *Session) Schemas() *schema.Registry {
	return s.registry
}

// Simulator returns the resolved simulation adapter.
func (s *Session) Simulator() *simulate.Adapter {
	return s.simulator
}

// Initialize loads the live configuration and resolves the simulator. On
// failure the store is left insane and every mutation fails.
func (s *Session) Initialize(ctx context.Context) error {
	if s.simulator == nil {
		s.simulator = simulate.Resolve(s.lookPath,
			simulate.WithPrograms(s.prefs.Simulate.Primary, s.prefs.Simulate.Fallback),
			simulate.WithRunner(s.runner),
			simulate.WithLogger(s.logger))
	}
	if s.registry == nil {
		reg, err := schema.Load()
		if err != nil {
			return s.insane(fmt.Errorf("load schemas: %w", err))
		}
		s.registry = reg
		s.store.registry = reg
	}
	if err := s.reload(ctx); err != nil {
		return s.insane(err)
	}
	s.store.onChange = s.checkOnChange
	s.state = StateClean
	s.logger.Info("session initialized",
		"schema", s.store.schema.Name,
		"objects", len(s.store.order),
		"simulator", s.simulator.Capability())
	return nil
}

// reload reads the coordinator and resets the baseline and working copy.
func (s *Session) reload(ctx context.Context) error {
	doc, err := s.coord.Read(ctx)
	if err != nil {
		return fmt.Errorf("read live configuration: %w", err)
	}
	sch, err := s.registry.Lookup(doc.Schema)
	if err != nil {
		return fmt.Errorf("read live configuration: %w", err)
	}
	base, err := newBaseline(doc)
	if err != nil {
		return fmt.Errorf("read live configuration: %w", err)
	}
	s.baseline = base
	s.store.load(doc, sch)
	return nil
}

// Refresh drops every pending change and re-reads the live configuration.
// With pending changes the operator is asked first. A store left insane by
// an earlier failure becomes usable again once the read succeeds.
func (s *Session) Refresh(ctx context.Context) error {
	if s.registry == nil || s.simulator == nil {
		return s.Initialize(ctx)
	}
	if s.store.IsSane() && s.store.HasChanged() &&
		!s.confirmer.Confirm("All changes will be dropped. Do you want to proceed?") {
		return ErrDeclined
	}
	dropped := len(s.store.Pending())
	if err := s.reload(ctx); err != nil {
		return s.insane(err)
	}
	s.store.onChange = s.checkOnChange
	s.upgraded = false
	s.state = StateClean
	s.logger.Info("configuration refreshed",
		"schema", s.store.schema.Name,
		"objects", len(s.store.order),
		"dropped", dropped)
	return nil
}

func (s *Session) insane(err error) error {
	s.store.markInsane(err)
	s.logger.Error("configuration is not sane", "error", err)
	return &SanityError{Cause: err}
}

func (s *Session) verifier() *Verifier {
	return NewVerifier(s.store.schema, s.prefs)
}

// checkOnChange logs semantic warnings for freshly changed objects when
// checks run on every change.
func (s *Session) checkOnChange(objs []*model.Object) {
	if s.prefs.CheckFrequency != prefs.CheckAlways {
		return
	}
	for _, f := range s.verifier().Semantic(objs, s.store.liveObjects()) {
		s.logger.Warn("semantic check", "id", f.ID, "message", f.Message)
	}
}

// Erase removes every object after the operator confirms.
func (s *Session) Erase() error {
	if err := s.store.checkSane(); err != nil {
		return err
	}
	if !s.confirmer.Confirm("Erase all configuration objects?") {
		return ErrDeclined
	}
	return s.store.Erase()
}
