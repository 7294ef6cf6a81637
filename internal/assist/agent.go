package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cadencehq/driveassist/internal/drive"
)

const (
	defaultMaxOperationsPerRequest = 5
	defaultTimeoutMs               = 30000
	defaultRetryAttempts           = 3
)

// Options is the agent configuration surface. TimeoutMs and RetryAttempts
// are declared budgets enforced by the calling layer and the capability, not
// recomputed inside the agent.
type Options struct {
	MaxOperationsPerRequest int
	TimeoutMs               int
	RetryAttempts           int
}

func (o Options) withDefaults() Options {
	if o.MaxOperationsPerRequest <= 0 {
		o.MaxOperationsPerRequest = defaultMaxOperationsPerRequest
	}
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = defaultTimeoutMs
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = defaultRetryAttempts
	}
	return o
}

// Agent orchestrates one conversation: parse intent, clarify or execute, and
// build the natural-language reply. One Agent owns one Context; instances
// are never shared across conversations.
type Agent struct {
	parser *IntentParser
	exec   *drive.Executor
	opts   Options
	log    *slog.Logger

	mu      sync.Mutex
	convCtx Context
}

func NewAgent(exec *drive.Executor, opts Options, log *slog.Logger) (*Agent, error) {
	if exec == nil {
		return nil, errors.New("nil executor")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		parser: NewIntentParser(),
		exec:   exec,
		opts:   opts.withDefaults(),
		log:    log,
	}, nil
}

// Context returns a copy of the rolling conversation context.
func (a *Agent) Context() Context {
	if a == nil {
		return Context{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := a.convCtx
	cp.PreviousOperations = append([]drive.Operation(nil), a.convCtx.PreviousOperations...)
	cp.SelectedFiles = append([]string(nil), a.convCtx.SelectedFiles...)
	return cp
}

// Process handles one user turn. It never panics to the caller: any
// uncaught failure collapses into a fixed apologetic response.
func (a *Agent) Process(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			if a != nil && a.log != nil {
				a.log.Error("agent turn panicked", "panic", fmt.Sprint(r))
			}
			resp = fallbackResponse()
		}
	}()

	if a == nil || a.exec == nil {
		return fallbackResponse()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a.mu.Lock()
	a.convCtx.merge(req)
	convCtx := a.convCtx
	a.mu.Unlock()

	intent := a.parser.Parse(req.Utterance, &convCtx)
	a.log.Debug("parsed intent",
		"primary", string(intent.Primary),
		"confidence", intent.Confidence,
		"clarify", intent.RequiresClarification,
	)

	if intent.RequiresClarification {
		return Response{
			Status:      StatusPartial,
			Message:     strings.Join(intent.ClarificationQuestions, " "),
			Suggestions: truncateSuggestions(intent.ClarificationQuestions),
			Clarifying:  intent.Confidence >= matchedConfidence,
		}
	}

	userID := strings.TrimSpace(req.UserID)
	if userID != "" {
		intent.Parameters["userId"] = userID
	}

	// Primary first, then secondaries in order. The primary may set state
	// (like the current folder or the file just created) that a secondary's
	// clause left unresolved; that state is folded in before each step runs.
	operations := make([]drive.Operation, 0, 1+len(intent.Secondary))
	operations = append(operations, a.exec.Execute(ctx, intent.Primary, intent.Parameters))
	a.applyOperationContext(operations[0])
	for _, step := range intent.Secondary {
		if len(operations) >= a.opts.MaxOperationsPerRequest {
			break
		}
		params := step.Parameters
		if params == nil {
			params = make(map[string]any, 2)
		}
		if userID != "" {
			params["userId"] = userID
		}
		a.fillFromContext(step.Kind, params)
		op := a.exec.Execute(ctx, step.Kind, params)
		operations = append(operations, op)
		a.applyOperationContext(op)
	}

	a.mu.Lock()
	a.convCtx.PreviousOperations = append([]drive.Operation(nil), operations...)
	a.mu.Unlock()

	succeeded := 0
	for _, op := range operations {
		if op.Status == drive.StatusSuccess {
			succeeded++
		}
	}

	status := StatusSuccess
	switch {
	case succeeded == 0:
		status = StatusError
	case succeeded < len(operations):
		status = StatusPartial
	}

	return Response{
		Status:      status,
		Message:     buildMessage(operations),
		Operations:  operations,
		Suggestions: buildSuggestions(operations),
	}
}

// fillFromContext resolves a follow-up step's target from the rolling
// context when its own clause named none, so "create a folder called projects
// and then make a file called notes.txt" lands the file in the new folder.
func (a *Agent) fillFromContext(kind drive.OperationKind, params map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch kind {
	case drive.OpCreateFile, drive.OpListFiles:
		if _, ok := params["folderId"]; !ok && a.convCtx.CurrentFolder != "" {
			params["folderId"] = a.convCtx.CurrentFolder
		}
	case drive.OpShareFile, drive.OpReadDocument, drive.OpUpdateDocument, drive.OpDeleteFile, drive.OpGetFileDetails:
		if _, ok := params["fileId"]; !ok && len(a.convCtx.SelectedFiles) > 0 {
			params["fileId"] = a.convCtx.SelectedFiles[0]
		}
	}
}

// applyOperationContext folds a successful operation's result back into the
// rolling context so later steps and turns can refer to it.
func (a *Agent) applyOperationContext(op drive.Operation) {
	if op.Status != drive.StatusSuccess {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch op.Kind {
	case drive.OpCreateFolder:
		if created, ok := op.Result.(drive.Created); ok && created.ID != "" {
			a.convCtx.CurrentFolder = created.ID
		}
	case drive.OpCreateFile:
		if created, ok := op.Result.(drive.Created); ok && created.ID != "" {
			a.convCtx.SelectedFiles = []string{created.ID}
		}
	case drive.OpGetFileDetails:
		if f, ok := op.Result.(drive.File); ok && f.ID != "" {
			a.convCtx.SelectedFiles = []string{f.ID}
		}
	}
}

// buildMessage keys the reply off the first successful operation. When
// nothing succeeded, the first failure's message is surfaced verbatim.
func buildMessage(operations []drive.Operation) string {
	var firstFailure *drive.Operation
	for i := range operations {
		op := &operations[i]
		if op.Status == drive.StatusSuccess {
			return messageFor(op)
		}
		if firstFailure == nil {
			firstFailure = op
		}
	}
	if firstFailure != nil {
		return firstFailure.Error
	}
	return "I didn't end up doing anything for that request."
}

func messageFor(op *drive.Operation) string {
	switch op.Kind {
	case drive.OpListFiles, drive.OpSearchFiles:
		list, ok := op.Result.(drive.FileList)
		if !ok {
			return "I looked through your Drive."
		}
		n := len(list.Files)
		if n == 0 {
			if op.Kind == drive.OpSearchFiles {
				return "I couldn't find any files matching that."
			}
			return "That folder is empty."
		}
		names := make([]string, 0, 3)
		for i, f := range list.Files {
			if i >= 3 {
				break
			}
			names = append(names, f.Name)
		}
		msg := fmt.Sprintf("I found %d items. They include: %s", n, strings.Join(names, ", "))
		if n > 3 {
			msg += " and more..."
		}
		return msg
	case drive.OpCreateFile:
		return "I've created the file for you."
	case drive.OpCreateFolder:
		return "I've created the folder for you."
	case drive.OpReadDocument:
		if text, ok := op.Result.(string); ok && strings.TrimSpace(text) != "" {
			return "Here's what the document says: " + strings.TrimSpace(text)
		}
		return "The document is empty."
	case drive.OpUpdateDocument:
		return "I've updated the document."
	case drive.OpDeleteFile:
		return "I've deleted it."
	case drive.OpShareFile:
		return "I've shared the file."
	case drive.OpGetFileDetails:
		if f, ok := op.Result.(drive.File); ok {
			return fmt.Sprintf("%s (%s)", f.Name, f.MimeType)
		}
		return "Here are the file details."
	default:
		return "Done."
	}
}

// buildSuggestions keys off the last operation, success or failure. This is
// deliberately asymmetric with buildMessage (first success vs last op).
func buildSuggestions(operations []drive.Operation) []string {
	if len(operations) == 0 {
		return nil
	}
	last := operations[len(operations)-1]
	if last.Status != drive.StatusSuccess {
		return truncateSuggestions(failureSuggestions)
	}
	return truncateSuggestions(suggestionTable[last.Kind])
}

var failureSuggestions = []string{
	"Try rephrasing the request",
	"Search for the file first",
	"Check the file name and try again",
}

var suggestionTable = map[drive.OperationKind][]string{
	drive.OpListFiles:      {"Search for a specific file", "Create a new file", "Open one of these files"},
	drive.OpSearchFiles:    {"Open one of the results", "Narrow the search", "Create a new file instead"},
	drive.OpCreateFile:     {"Share it with someone", "Add more content", "Create another file"},
	drive.OpCreateFolder:   {"Create a file in this folder", "List the folder", "Share the folder"},
	drive.OpReadDocument:   {"Update this document", "Share it with someone", "Get the file details"},
	drive.OpUpdateDocument: {"Read it back", "Share it with someone", "Create a copy"},
	drive.OpDeleteFile:     {"List your files", "Search for something else", "Create a new file"},
	drive.OpShareFile:      {"Share it with someone else", "Change the access role", "Get the file details"},
	drive.OpGetFileDetails: {"Read the document", "Share it with someone", "Delete it"},
}

func truncateSuggestions(in []string) []string {
	out := make([]string, 0, 3)
	for _, s := range in {
		v := strings.TrimSpace(s)
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func fallbackResponse() Response {
	return Response{
		Status:  StatusError,
		Message: "I'm sorry, something went wrong while handling that request. Please try again.",
		Suggestions: []string{
			"Try rephrasing the request",
			"Try again in a moment",
		},
	}
}
