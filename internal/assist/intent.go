package assist

import (
	"regexp"
	"strings"

	"github.com/cadencehq/driveassist/internal/drive"
)

const (
	matchedConfidence = 0.8
	defaultConfidence = 0.3
)

// intentRule binds one operation kind to its trigger patterns. Rules are
// tested in table order, then in pattern order within a rule; the first
// match selects the primary action. The parser is a lexical router, not a
// ranked classifier, so confidence is fixed rather than scored.
type intentRule struct {
	kind     drive.OperationKind
	patterns []*regexp.Regexp
}

var intentRules = []intentRule{
	{drive.OpListFiles, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:list|show(?: me)?)\b.*\b(?:files|documents|docs|folders)\b`),
		regexp.MustCompile(`(?i)\bwhat(?:'s| is)?\s+(?:in|inside)\b.*\bfolder\b`),
		regexp.MustCompile(`(?i)\bshow me everything\b`),
	}},
	{drive.OpSearchFiles, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:search|find|look for|locate)\b`),
		regexp.MustCompile(`(?i)\bwhere(?:'s| is)\b`),
	}},
	// Folder creation must precede file creation: "create a folder ..." also
	// mentions the create verb that file creation keys on.
	{drive.OpCreateFolder, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:create|make|add|new)\b.*\bfolder\b`),
	}},
	{drive.OpCreateFile, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:create|make|add|write|new)\b.*\b(?:file|document|doc|note)\b`),
	}},
	{drive.OpShareFile, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bshare\b`),
		regexp.MustCompile(`(?i)\bgive\b.*\baccess\b`),
	}},
	{drive.OpDeleteFile, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:delete|remove|trash)\b`),
	}},
	{drive.OpUpdateDocument, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:update|edit|change|rewrite|replace)\b`),
	}},
	{drive.OpReadDocument, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:read|open)\b`),
		regexp.MustCompile(`(?i)\bwhat does\b.*\bsay\b`),
	}},
	{drive.OpGetFileDetails, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:details|info|metadata|information)\b`),
		regexp.MustCompile(`(?i)\bwhen was\b.*\b(?:modified|changed|created)\b`),
	}},
}

var (
	emailPattern     = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	namedPattern     = regexp.MustCompile(`(?i)\b(?:called|named|titled)\s+(?:"([^"]+)"|'([^']+)'|(\S+))`)
	quotedPattern    = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	extensionPattern = regexp.MustCompile(`\b[\w\-]+\.[A-Za-z0-9]{1,5}\b`)
	contentPattern   = regexp.MustCompile(`(?i)\bwith\s+(?:the\s+)?content\s+(.+)$`)
	containsPattern  = regexp.MustCompile(`(?i)\bcontaining\s+(.+)$`)
	inFolderPattern  = regexp.MustCompile(`(?i)\bin\s+(?:the\s+)?(?:"([^"]+)"|'([^']+)'|(\S+))\s+folder\b`)
	folderOfPattern  = regexp.MustCompile(`(?i)\bfolder\s+(?:"([^"]+)"|'([^']+)'|([^\s,.]+))`)
	searchPattern    = regexp.MustCompile(`(?i)\b(?:search(?:\s+for)?|find|look\s+for|locate)\s+(.+)$`)
	rolePattern      = regexp.MustCompile(`(?i)\bas\s+(?:an?\s+)?(reader|writer|commenter|editor|viewer)\b`)
	andSplitPattern  = regexp.MustCompile(`(?i)\s+and\s+(?:then\s+)?`)
)

// IntentParser converts a raw utterance into a ParsedIntent. It is a pure
// function of the text plus the rolling conversation context.
type IntentParser struct{}

func NewIntentParser() *IntentParser {
	return &IntentParser{}
}

func (p *IntentParser) Parse(utterance string, convCtx *Context) ParsedIntent {
	text := strings.TrimSpace(utterance)

	primary, matched := matchRule(text)
	if !matched {
		// Lexical fallback: treat the whole utterance as a search query but
		// flag the turn for clarification.
		return ParsedIntent{
			Primary:               drive.OpSearchFiles,
			Parameters:            map[string]any{"query": text},
			Confidence:            defaultConfidence,
			RequiresClarification: true,
			ClarificationQuestions: []string{
				"I wasn't sure what you meant. Could you rephrase that?",
			},
		}
	}

	// Bounded multi-step: a conjunction may carry one chain of follow-up
	// actions. Each clause is extracted on its own so "create a folder called
	// projects and then make a file called notes.txt" binds projects to the
	// folder and notes.txt to the file. Only the primary's clause drives
	// clarification. Secondaries skip the conversation context here: their
	// unresolved targets are filled at execution time, once the primary has
	// updated that state.
	clauses := splitClauses(text)
	var secondary []SecondaryAction
	for _, clause := range clauses[1:] {
		kind, ok := matchRule(clause)
		if !ok || kind == primary {
			continue
		}
		secondary = append(secondary, SecondaryAction{
			Kind:       kind,
			Parameters: extractParameters(kind, clause, nil),
		})
	}

	params := extractParameters(primary, clauses[0], convCtx)

	intent := ParsedIntent{
		Primary:    primary,
		Secondary:  secondary,
		Parameters: params,
		Confidence: matchedConfidence,
	}
	if missing := drive.MissingRequired(primary, params); len(missing) > 0 {
		intent.RequiresClarification = true
		questions := make([]string, 0, len(missing))
		for _, m := range missing {
			questions = append(questions, drive.QuestionFor(m))
		}
		intent.ClarificationQuestions = questions
	}
	return intent
}

// splitClauses cuts an utterance at conjunctions, but only where the clause
// that follows starts a recognized action. "with content foo and bar and
// share it" stays two clauses: "bar" is content, not a step.
func splitClauses(text string) []string {
	locs := andSplitPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	segments := make([]string, 0, len(locs)+1)
	start := 0
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if _, ok := matchRule(strings.TrimSpace(text[loc[1]:end])); !ok {
			continue
		}
		segments = append(segments, strings.TrimSpace(text[start:loc[0]]))
		start = loc[1]
	}
	return append(segments, strings.TrimSpace(text[start:]))
}

func matchRule(text string) (drive.OperationKind, bool) {
	for _, rule := range intentRules {
		for _, pat := range rule.patterns {
			if pat.MatchString(text) {
				return rule.kind, true
			}
		}
	}
	return "", false
}

func extractParameters(kind drive.OperationKind, text string, convCtx *Context) map[string]any {
	params := make(map[string]any, 4)

	switch kind {
	case drive.OpSearchFiles:
		if m := searchPattern.FindStringSubmatch(text); m != nil {
			params["query"] = strings.Trim(strings.TrimSpace(m[1]), `"'`)
		}
	case drive.OpListFiles:
		if folder := folderReference(text); folder != "" {
			params["folderId"] = folder
		} else if convCtx != nil && strings.TrimSpace(convCtx.CurrentFolder) != "" {
			params["folderId"] = strings.TrimSpace(convCtx.CurrentFolder)
		}
	case drive.OpCreateFile:
		if name := nameReference(text); name != "" {
			params["fileName"] = name
		}
		if content := contentReference(text); content != "" {
			params["content"] = content
		}
		if folder := folderReference(text); folder != "" {
			params["folderId"] = folder
		} else if convCtx != nil && strings.TrimSpace(convCtx.CurrentFolder) != "" {
			params["folderId"] = strings.TrimSpace(convCtx.CurrentFolder)
		}
	case drive.OpCreateFolder:
		if name := nameReference(text); name != "" {
			params["folderName"] = name
		}
	case drive.OpUpdateDocument:
		if ref := fileReference(text, convCtx); ref != "" {
			params["fileId"] = ref
		}
		if content := contentReference(text); content != "" {
			params["content"] = content
		}
	case drive.OpShareFile:
		if ref := fileReference(text, convCtx); ref != "" {
			params["fileId"] = ref
		}
		if email := emailPattern.FindString(text); email != "" {
			params["email"] = email
		}
		if m := rolePattern.FindStringSubmatch(text); m != nil {
			params["role"] = normalizeRole(m[1])
		}
	case drive.OpReadDocument, drive.OpDeleteFile, drive.OpGetFileDetails:
		if ref := fileReference(text, convCtx); ref != "" {
			params["fileId"] = ref
		}
	}
	return params
}

// nameReference extracts an explicit name: "called X", "named X", a quoted
// string, or a token carrying a file extension. Trailing punctuation is the
// user's problem ("called notes.txt." keeps the dot-less form via the
// extension pattern).
func nameReference(text string) string {
	if m := namedPattern.FindStringSubmatch(text); m != nil {
		return firstGroup(m[1:])
	}
	if m := quotedPattern.FindStringSubmatch(text); m != nil {
		return firstGroup(m[1:])
	}
	// Email domains would otherwise read as file names ("share it with
	// bob@example.com" is not about a file called example.com).
	if m := extensionPattern.FindString(emailPattern.ReplaceAllString(text, "")); m != "" {
		return m
	}
	return ""
}

// fileReference resolves the file a file-scoped operation targets. Explicit
// references win; otherwise the conversation's selected file fills in.
func fileReference(text string, convCtx *Context) string {
	if ref := nameReference(text); ref != "" {
		return ref
	}
	if convCtx != nil && len(convCtx.SelectedFiles) > 0 {
		return strings.TrimSpace(convCtx.SelectedFiles[0])
	}
	return ""
}

func folderReference(text string) string {
	if m := inFolderPattern.FindStringSubmatch(text); m != nil {
		return firstGroup(m[1:])
	}
	if m := folderOfPattern.FindStringSubmatch(text); m != nil {
		return firstGroup(m[1:])
	}
	return ""
}

func contentReference(text string) string {
	if m := contentPattern.FindStringSubmatch(text); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"'`)
	}
	if m := containsPattern.FindStringSubmatch(text); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"'`)
	}
	return ""
}

func firstGroup(groups []string) string {
	for _, g := range groups {
		if v := strings.TrimSpace(g); v != "" {
			return v
		}
	}
	return ""
}

func normalizeRole(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "writer", "editor":
		return "writer"
	case "commenter":
		return "commenter"
	default:
		return "reader"
	}
}
