package drive

import (
	"strings"
	"time"
)

// OperationKind identifies one Drive action the assistant can dispatch.
type OperationKind string

const (
	OpListFiles      OperationKind = "list_files"
	OpSearchFiles    OperationKind = "search_files"
	OpCreateFile     OperationKind = "create_file"
	OpCreateFolder   OperationKind = "create_folder"
	OpReadDocument   OperationKind = "read_document"
	OpUpdateDocument OperationKind = "update_document"
	OpDeleteFile     OperationKind = "delete_file"
	OpShareFile      OperationKind = "share_file"
	OpGetFileDetails OperationKind = "get_file_details"
)

// OperationStatus is the outcome of one attempted operation.
type OperationStatus string

const (
	StatusSuccess OperationStatus = "success"
	StatusError   OperationStatus = "error"
	StatusPending OperationStatus = "pending"
)

// Operation records one attempted action against the Drive capability.
// Immutable once recorded.
type Operation struct {
	Kind       OperationKind   `json:"kind"`
	Status     OperationStatus `json:"status"`
	Result     any             `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Parameters map[string]any  `json:"parameters,omitempty"`
}

// ErrorType is the stable taxonomy for classified Drive/agent failures.
type ErrorType string

const (
	ErrorAuthentication ErrorType = "authentication"
	ErrorPermission     ErrorType = "permission"
	ErrorNotFound       ErrorType = "not_found"
	ErrorQuota          ErrorType = "quota"
	ErrorNetwork        ErrorType = "network"
	ErrorValidation     ErrorType = "validation"
	ErrorUnknown        ErrorType = "unknown"
)

// AgentError carries a classified failure with user-facing recovery hints.
// It is surfaced, never persisted.
type AgentError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Details     string    `json:"details,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Retryable   bool      `json:"retryable"`
}

func (e *AgentError) Normalize() {
	if e == nil {
		return
	}
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		e.Message = "Operation failed"
	}
	if e.Type == "" {
		e.Type = ErrorUnknown
	}
	if len(e.Suggestions) > 0 {
		out := make([]string, 0, len(e.Suggestions))
		seen := make(map[string]struct{}, len(e.Suggestions))
		for _, it := range e.Suggestions {
			v := strings.TrimSpace(it)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
		e.Suggestions = out
	}
}

func (e *AgentError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}
