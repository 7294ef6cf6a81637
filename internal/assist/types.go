package assist

import (
	"strings"

	"github.com/cadencehq/driveassist/internal/drive"
)

// Context is the rolling conversation state owned by one Agent instance.
// It survives across requests within a session and is never shared between
// conversations.
type Context struct {
	ConversationID     string             `json:"conversation_id,omitempty"`
	PreviousOperations []drive.Operation  `json:"previous_operations,omitempty"`
	CurrentFolder      string             `json:"current_folder,omitempty"`
	SelectedFiles      []string           `json:"selected_files,omitempty"`
	UserPreferences    map[string]string  `json:"user_preferences,omitempty"`
}

// ParsedIntent is the structured interpretation of one utterance. Ephemeral:
// produced and consumed within a single request.
type ParsedIntent struct {
	Primary                drive.OperationKind `json:"primary_action"`
	Secondary              []SecondaryAction   `json:"secondary_actions,omitempty"`
	Parameters             map[string]any      `json:"parameters"`
	Confidence             float64             `json:"confidence"`
	RequiresClarification  bool                `json:"requires_clarification"`
	ClarificationQuestions []string            `json:"clarification_questions,omitempty"`
}

// SecondaryAction is one follow-up action parsed from a conjunction clause,
// carrying only the parameters its own clause names. Targets the clause
// leaves unresolved (the file just created, the folder just made) are filled
// from conversation state at execution time, after the earlier steps ran.
type SecondaryAction struct {
	Kind       drive.OperationKind `json:"kind"`
	Parameters map[string]any      `json:"parameters,omitempty"`
}

// ResponseStatus summarizes one agent turn.
type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusPartial ResponseStatus = "partial"
	StatusError   ResponseStatus = "error"
)

// Request is one user turn handed to the agent. The context fields are
// caller-supplied fragments merged into the rolling Context before parsing.
type Request struct {
	UserID        string            `json:"user_id"`
	Utterance     string            `json:"utterance"`
	CurrentFolder string            `json:"current_folder,omitempty"`
	SelectedFiles []string          `json:"selected_files,omitempty"`
	Preferences   map[string]string `json:"preferences,omitempty"`
}

// Response is the agent's answer to one turn. Clarifying marks a turn where
// an operation matched but a schema-required parameter was missing; the
// low-confidence search fallback leaves it false so callers can hand only
// genuinely unrecognized turns to a free-form model.
type Response struct {
	Status      ResponseStatus    `json:"status"`
	Message     string            `json:"message"`
	Operations  []drive.Operation `json:"operations,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Clarifying  bool              `json:"clarifying,omitempty"`
}

func (c *Context) merge(req Request) {
	if c == nil {
		return
	}
	if v := strings.TrimSpace(req.CurrentFolder); v != "" {
		c.CurrentFolder = v
	}
	if len(req.SelectedFiles) > 0 {
		files := make([]string, 0, len(req.SelectedFiles))
		for _, f := range req.SelectedFiles {
			if v := strings.TrimSpace(f); v != "" {
				files = append(files, v)
			}
		}
		c.SelectedFiles = files
	}
	if len(req.Preferences) > 0 {
		if c.UserPreferences == nil {
			c.UserPreferences = make(map[string]string, len(req.Preferences))
		}
		for k, v := range req.Preferences {
			c.UserPreferences[k] = v
		}
	}
}
