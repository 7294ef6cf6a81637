package drive

import (
	"fmt"
	"sort"
	"strings"
)

// Property describes one tool parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Parameters is the parameter schema of one tool.
type Parameters struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Tool is the static schema for one OperationKind. It drives both parameter
// validation in the executor and clarification-question generation.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

var toolTable = map[OperationKind]Tool{
	OpListFiles: {
		Name:        string(OpListFiles),
		Description: "List files in a folder (or the root folder when none is given)",
		Parameters: Parameters{
			Properties: map[string]Property{
				"folderId":  {Type: "string", Description: "Folder to list; empty means root"},
				"pageSize":  {Type: "number", Description: "Maximum number of entries to return"},
				"pageToken": {Type: "string", Description: "Continuation token from a previous page"},
			},
		},
	},
	OpSearchFiles: {
		Name:        string(OpSearchFiles),
		Description: "Search files by name or content",
		Parameters: Parameters{
			Properties: map[string]Property{
				"query":     {Type: "string", Description: "Search text"},
				"pageSize":  {Type: "number", Description: "Maximum number of entries to return"},
				"pageToken": {Type: "string", Description: "Continuation token from a previous page"},
			},
			Required: []string{"query"},
		},
	},
	OpCreateFile: {
		Name:        string(OpCreateFile),
		Description: "Create a new file with the given name and content",
		Parameters: Parameters{
			Properties: map[string]Property{
				"fileName": {Type: "string", Description: "Name of the file to create"},
				"content":  {Type: "string", Description: "Initial file content"},
				"folderId": {Type: "string", Description: "Destination folder; empty means root"},
			},
			Required: []string{"fileName", "content"},
		},
	},
	OpCreateFolder: {
		Name:        string(OpCreateFolder),
		Description: "Create a new folder",
		Parameters: Parameters{
			Properties: map[string]Property{
				"folderName": {Type: "string", Description: "Name of the folder to create"},
			},
			Required: []string{"folderName"},
		},
	},
	OpReadDocument: {
		Name:        string(OpReadDocument),
		Description: "Read the text content of a document",
		Parameters: Parameters{
			Properties: map[string]Property{
				"fileId": {Type: "string", Description: "Document to read"},
			},
			Required: []string{"fileId"},
		},
	},
	OpUpdateDocument: {
		Name:        string(OpUpdateDocument),
		Description: "Replace the text content of a document",
		Parameters: Parameters{
			Properties: map[string]Property{
				"fileId":  {Type: "string", Description: "Document to update"},
				"content": {Type: "string", Description: "New document content"},
			},
			Required: []string{"fileId", "content"},
		},
	},
	OpDeleteFile: {
		Name:        string(OpDeleteFile),
		Description: "Delete a file or folder",
		Parameters: Parameters{
			Properties: map[string]Property{
				"fileId": {Type: "string", Description: "File or folder to delete"},
			},
			Required: []string{"fileId"},
		},
	},
	OpShareFile: {
		Name:        string(OpShareFile),
		Description: "Share a file with another user by email",
		Parameters: Parameters{
			Properties: map[string]Property{
				"fileId": {Type: "string", Description: "File to share"},
				"email":  {Type: "string", Description: "Email address of the recipient"},
				"role":   {Type: "string", Description: "Access role: reader|writer|commenter"},
			},
			Required: []string{"fileId", "email"},
		},
	},
	OpGetFileDetails: {
		Name:        string(OpGetFileDetails),
		Description: "Get metadata for a single file",
		Parameters: Parameters{
			Properties: map[string]Property{
				"fileId": {Type: "string", Description: "File to inspect"},
			},
			Required: []string{"fileId"},
		},
	},
}

// ToolFor returns the schema entry for a kind.
func ToolFor(kind OperationKind) (Tool, bool) {
	t, ok := toolTable[kind]
	return t, ok
}

// Kinds returns all known operation kinds in a stable order.
func Kinds() []OperationKind {
	out := make([]OperationKind, 0, len(toolTable))
	for k := range toolTable {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MissingRequired returns the schema-required parameter names absent (or
// blank) in params, in schema order.
func MissingRequired(kind OperationKind, params map[string]any) []string {
	t, ok := toolTable[kind]
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range t.Parameters.Required {
		v, present := params[name]
		if !present {
			missing = append(missing, name)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

var paramQuestions = map[string]string{
	"fileName":   "What should the file be called?",
	"folderName": "What should the folder be called?",
	"content":    "What content should it contain?",
	"fileId":     "Which file do you mean?",
	"query":      "What would you like me to search for?",
	"email":      "Who should I share it with? Please give an email address.",
	"role":       "What access should they get: reader, writer, or commenter?",
}

// QuestionFor returns a human-readable clarification question for a missing
// required parameter, falling back to a generic template for unknown names.
func QuestionFor(param string) string {
	if q, ok := paramQuestions[strings.TrimSpace(param)]; ok {
		return q
	}
	return fmt.Sprintf("What %s would you like me to use?", strings.TrimSpace(param))
}
