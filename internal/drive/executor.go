package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"
)

// missingParamsMessage is recorded verbatim on operations that fail schema
// validation. Callers may match on it.
const missingParamsMessage = "Missing required parameters"

// Executor validates parameters against the tool schema and invokes the
// Drive capability. Failures never escape as raw errors; every call returns
// an Operation describing the outcome.
type Executor struct {
	cap Capability
	log *slog.Logger
}

func NewExecutor(cap Capability, log *slog.Logger) (*Executor, error) {
	if cap == nil {
		return nil, errors.New("nil capability")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{cap: cap, log: log}, nil
}

// Execute runs one operation. Missing required parameters short-circuit
// before any capability call is made, so a validation failure is always
// side-effect free.
func (e *Executor) Execute(ctx context.Context, kind OperationKind, params map[string]any) Operation {
	// Snapshot the parameters: the recorded operation must not change when
	// the caller reuses or mutates its map for a later step.
	op := Operation{
		Kind:       kind,
		Status:     StatusPending,
		Timestamp:  time.Now(),
		Parameters: maps.Clone(params),
	}
	if e == nil || e.cap == nil {
		op.Status = StatusError
		op.Error = "executor not initialized"
		return op
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tool, ok := ToolFor(kind)
	if !ok {
		op.Status = StatusError
		op.Error = fmt.Sprintf("unknown operation %q", string(kind))
		return op
	}
	if missing := MissingRequired(kind, params); len(missing) > 0 {
		op.Status = StatusError
		op.Error = missingParamsMessage
		e.log.Debug("drive operation rejected", "kind", string(kind), "missing", missing)
		return op
	}

	result, err := e.dispatch(ctx, kind, params)
	if err != nil {
		classified := Classify(err, tool.Description)
		op.Status = StatusError
		op.Error = classified.Message
		e.log.Warn("drive operation failed",
			"kind", string(kind),
			"error_type", string(classified.Type),
			"detail", classified.Details,
		)
		return op
	}

	op.Status = StatusSuccess
	op.Result = result
	return op
}

func (e *Executor) dispatch(ctx context.Context, kind OperationKind, params map[string]any) (any, error) {
	switch kind {
	case OpCreateFile:
		return e.cap.CreateFile(ctx, stringParam(params, "fileName"), stringParam(params, "content"), stringParam(params, "userId"))
	case OpCreateFolder:
		return e.cap.CreateFolder(ctx, stringParam(params, "folderName"), stringParam(params, "userId"))
	case OpListFiles:
		return e.cap.ListFiles(ctx, stringParam(params, "folderId"), intParam(params, "pageSize", 20), stringParam(params, "pageToken"))
	case OpSearchFiles:
		return e.cap.SearchFiles(ctx, stringParam(params, "query"), intParam(params, "pageSize", 20), stringParam(params, "pageToken"))
	case OpGetFileDetails:
		return e.cap.GetFile(ctx, stringParam(params, "fileId"))
	case OpDeleteFile:
		return nil, e.cap.DeleteFile(ctx, stringParam(params, "fileId"))
	case OpShareFile:
		role := stringParam(params, "role")
		if role == "" {
			role = "reader"
		}
		return nil, e.cap.ShareFile(ctx, stringParam(params, "fileId"), stringParam(params, "email"), role)
	case OpReadDocument:
		return e.cap.ReadDocument(ctx, stringParam(params, "fileId"))
	case OpUpdateDocument:
		return nil, e.cap.UpdateDocument(ctx, stringParam(params, "fileId"), stringParam(params, "content"))
	default:
		return nil, fmt.Errorf("unknown operation %q", string(kind))
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	switch v := params[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func intParam(params map[string]any, key string, fallback int) int {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
