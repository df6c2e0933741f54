package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // domain rejection (conflict, not found, bad request)
	ExitCommandError = 2 // command error (bad flags, unreachable backend)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Domain faults map to
// ExitFailure, everything else to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if fault.KindOf(err) != fault.KindGeneric {
		return ExitFailure
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Emit writes v as indented JSON in json mode; in text mode it writes
// the provided human rendering.
func (f *OutputFormatter) Emit(v any, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(f.Writer)
	return nil
}

// entityView is the JSON rendering of an entity.
type entityView struct {
	UUID             string `json:"uuid"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Status           string `json:"status"`
	Archived         bool   `json:"archived"`
	EverPublished    bool   `json:"everPublished"`
	LatestVersion    int64  `json:"latestVersionId"`
	PublishedVersion *int64 `json:"publishedVersionId,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

func viewOf(e model.Entity) entityView {
	return entityView{
		UUID:             e.UUID.String(),
		Name:             e.Name,
		Type:             e.Type,
		Status:           string(e.Status),
		Archived:         e.Archived,
		EverPublished:    e.EverPublished,
		LatestVersion:    e.LatestVersionID,
		PublishedVersion: e.PublishedVersionID,
		CreatedAt:        e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:        e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (f *OutputFormatter) EmitEntity(e model.Entity) error {
	return f.Emit(viewOf(e), func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s (%s) status=%s\n", e.UUID, e.Name, e.Type, e.Status)
	})
}

func (f *OutputFormatter) EmitEntities(entities []model.Entity) error {
	views := make([]entityView, len(entities))
	for i, e := range entities {
		views[i] = viewOf(e)
	}
	return f.Emit(views, func(w io.Writer) {
		for _, e := range entities {
			fmt.Fprintf(w, "%s  %s (%s) status=%s\n", e.UUID, e.Name, e.Type, e.Status)
		}
	})
}
