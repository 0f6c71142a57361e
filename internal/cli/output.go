package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/cibconf/internal/cib"
	"github.com/roach88/cibconf/internal/extproc"
	"github.com/roach88/cibconf/internal/schema"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected change: validation, verification, conflict
	ExitCommandError = 2 // Command error (bad arguments, database unusable, missing objects)
)

// Error codes reported in CLI output.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotSane      = "E002" // Live configuration could not be loaded
	ErrCodeNotFound     = "E003" // Object or selector not found
	ErrCodeValidation   = "E004" // Schema or reference violation
	ErrCodeVerification = "E005" // Verification failed
	ErrCodeConflict     = "E006" // Id collision or concurrent modification
	ErrCodeNotMember    = "E007" // Group member not found
	ErrCodeUnsupported  = "E008" // Kind not allowed by the schema
	ErrCodeParse        = "E009" // Configuration text could not be parsed
	ErrCodeReferenced   = "E010" // Deletion refused, object still referenced
	ErrCodeRejected     = "E011" // Commit stopped and not forced
	ErrCodeDeclined     = "E012" // Operator declined a confirmation
	ErrCodeMissingTool  = "E013" // External program not installed
	ErrCodeSchema       = "E014" // Schema unknown or upgrade not applicable
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err through the formatter and returns the matching
// ExitError.
func (f *OutputFormatter) Fail(err error) error {
	code, exit, details := classify(err)
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(exit, code, err)
}

// classify maps a session error to an error code, an exit code and
// structured details for JSON output.
func classify(err error) (string, int, any) {
	var (
		sanity      *cib.SanityError
		notFound    *cib.NotFoundError
		validation  *cib.ValidationError
		verify      *cib.VerificationError
		conflict    *cib.ConflictError
		notMember   *cib.NotMemberError
		unsupported *cib.UnsupportedElementError
		parse       *cib.ParseError
		reference   *cib.ReferenceError
		rejected    *cib.CommitRejectedError
		missing     *extproc.CapabilityMissingError
		unknown     *schema.UnknownSchemaError
	)
	switch {
	case errors.As(err, &sanity):
		return ErrCodeNotSane, ExitCommandError, nil
	case errors.As(err, &rejected):
		code, _, details := classify(rejected.Err)
		if code == ErrCodeGeneric {
			code = ErrCodeRejected
		}
		return code, ExitFailure, details
	case errors.As(err, &notFound):
		return ErrCodeNotFound, ExitCommandError, notFound.IDs
	case errors.As(err, &validation):
		return ErrCodeValidation, ExitFailure, violationDetails(validation.Violations)
	case errors.As(err, &verify):
		return ErrCodeVerification, ExitFailure, reportJSON(verify.Report)
	case errors.As(err, &conflict):
		return ErrCodeConflict, ExitFailure, nil
	case errors.As(err, &notMember):
		return ErrCodeNotMember, ExitFailure, nil
	case errors.As(err, &unsupported):
		return ErrCodeUnsupported, ExitFailure, nil
	case errors.As(err, &parse):
		return ErrCodeParse, ExitFailure, map[string]int{"line": parse.Line}
	case errors.As(err, &reference):
		return ErrCodeReferenced, ExitFailure, reference.ReferencedBy
	case errors.Is(err, cib.ErrDeclined):
		return ErrCodeDeclined, ExitFailure, nil
	case errors.As(err, &missing):
		return ErrCodeMissingTool, ExitCommandError, missing.Programs
	case errors.As(err, &unknown), errors.Is(err, cib.ErrUnexpectedSchema), errors.Is(err, cib.ErrAlreadyUpgraded):
		return ErrCodeSchema, ExitFailure, nil
	default:
		return ErrCodeGeneric, ExitFailure, nil
	}
}

func violationDetails(vs []schema.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.String())
	}
	return out
}
