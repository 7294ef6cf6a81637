package assist

import (
	"testing"

	"github.com/cadencehq/driveassist/internal/drive"
)

func TestParse_UnknownUtteranceFallsBackToSearch(t *testing.T) {
	t.Parallel()

	p := NewIntentParser()
	for _, utterance := range []string{
		"what is the meaning of life",
		"hello there",
		"hmm",
	} {
		intent := p.Parse(utterance, nil)
		if intent.Primary != drive.OpSearchFiles {
			t.Fatalf("%q: primary=%q, want search_files", utterance, intent.Primary)
		}
		if !intent.RequiresClarification {
			t.Fatalf("%q: expected clarification", utterance)
		}
		if intent.Confidence != 0.3 {
			t.Fatalf("%q: confidence=%v, want 0.3", utterance, intent.Confidence)
		}
		if got := intent.Parameters["query"]; got != utterance {
			t.Fatalf("%q: query=%v", utterance, got)
		}
	}
}

func TestParse_MatchedConfidenceIsFixed(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("list my files", nil)
	if intent.Primary != drive.OpListFiles {
		t.Fatalf("primary=%q", intent.Primary)
	}
	if intent.Confidence != 0.8 {
		t.Fatalf("confidence=%v, want 0.8", intent.Confidence)
	}
	if intent.RequiresClarification {
		t.Fatalf("list_files has no required params, should not clarify")
	}
}

func TestParse_CreateFileMissingParamsClarifies(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("create a new file", nil)
	if intent.Primary != drive.OpCreateFile {
		t.Fatalf("primary=%q", intent.Primary)
	}
	if !intent.RequiresClarification {
		t.Fatalf("expected clarification")
	}
	wantQuestions := map[string]bool{
		"What should the file be called?": false,
		"What content should it contain?": false,
	}
	for _, q := range intent.ClarificationQuestions {
		if _, ok := wantQuestions[q]; ok {
			wantQuestions[q] = true
		}
	}
	for q, seen := range wantQuestions {
		if !seen {
			t.Fatalf("missing question %q in %v", q, intent.ClarificationQuestions)
		}
	}
}

func TestParse_CreateFileWithNameAndContent(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("create a file called notes.txt with content Hello", nil)
	if intent.Primary != drive.OpCreateFile {
		t.Fatalf("primary=%q", intent.Primary)
	}
	if intent.RequiresClarification {
		t.Fatalf("should not clarify, questions=%v", intent.ClarificationQuestions)
	}
	if got := intent.Parameters["fileName"]; got != "notes.txt" {
		t.Fatalf("fileName=%v", got)
	}
	if got := intent.Parameters["content"]; got != "Hello" {
		t.Fatalf("content=%v", got)
	}
}

func TestParse_ShareExtractsEmail(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("share budget.xlsx with alice@example.com", nil)
	if intent.Primary != drive.OpShareFile {
		t.Fatalf("primary=%q", intent.Primary)
	}
	if got := intent.Parameters["email"]; got != "alice@example.com" {
		t.Fatalf("email=%v", got)
	}
	if got := intent.Parameters["fileId"]; got != "budget.xlsx" {
		t.Fatalf("fileId=%v", got)
	}
	if intent.RequiresClarification {
		t.Fatalf("should not clarify")
	}
}

func TestParse_RuleTableRouting(t *testing.T) {
	t.Parallel()

	cases := []struct {
		utterance string
		want      drive.OperationKind
	}{
		{"list my files", drive.OpListFiles},
		{"show me the documents in the work folder", drive.OpListFiles},
		{"find the quarterly report", drive.OpSearchFiles},
		{"search for meeting notes", drive.OpSearchFiles},
		{"create a folder called projects", drive.OpCreateFolder},
		{"make a new document named draft.md containing outline", drive.OpCreateFile},
		{"share report.pdf with bob@example.com as a writer", drive.OpShareFile},
		{"delete old-draft.txt", drive.OpDeleteFile},
		{"update notes.txt with content fresh text", drive.OpUpdateDocument},
		{"read meeting-notes.txt", drive.OpReadDocument},
		{"when was budget.xlsx modified", drive.OpGetFileDetails},
	}

	p := NewIntentParser()
	for _, tc := range cases {
		intent := p.Parse(tc.utterance, nil)
		if intent.Primary != tc.want {
			t.Fatalf("%q: primary=%q, want %q", tc.utterance, intent.Primary, tc.want)
		}
		if intent.Confidence != 0.8 {
			t.Fatalf("%q: confidence=%v", tc.utterance, intent.Confidence)
		}
	}
}

func TestParse_SecondaryActions(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("create a file called plan.txt with content roadmap and share it with bob@example.com", nil)
	if intent.Primary != drive.OpCreateFile {
		t.Fatalf("primary=%q", intent.Primary)
	}
	if len(intent.Secondary) != 1 || intent.Secondary[0].Kind != drive.OpShareFile {
		t.Fatalf("secondary=%+v", intent.Secondary)
	}
	// The primary's clause stops at the conjunction.
	if got := intent.Parameters["content"]; got != "roadmap" {
		t.Fatalf("content=%v, want roadmap", got)
	}
	// The share step's parameters come from its own clause.
	if got := intent.Secondary[0].Parameters["email"]; got != "bob@example.com" {
		t.Fatalf("email=%v", got)
	}
	if got, ok := intent.Secondary[0].Parameters["fileId"]; ok {
		t.Fatalf("share clause names no file, fileId=%v", got)
	}
}

func TestParse_ClausesBindTheirOwnParameters(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("create a folder called projects and then make a file called notes.txt with content hello", nil)
	if intent.Primary != drive.OpCreateFolder {
		t.Fatalf("primary=%q", intent.Primary)
	}
	if got := intent.Parameters["folderName"]; got != "projects" {
		t.Fatalf("folderName=%v, want projects", got)
	}
	if got, ok := intent.Parameters["fileName"]; ok {
		t.Fatalf("folder clause picked up the file name: %v", got)
	}
	if len(intent.Secondary) != 1 || intent.Secondary[0].Kind != drive.OpCreateFile {
		t.Fatalf("secondary=%+v", intent.Secondary)
	}
	file := intent.Secondary[0].Parameters
	if got := file["fileName"]; got != "notes.txt" {
		t.Fatalf("fileName=%v, want notes.txt", got)
	}
	if got := file["content"]; got != "hello" {
		t.Fatalf("content=%v, want hello", got)
	}
	if got, ok := file["folderId"]; ok {
		t.Fatalf("file clause names no folder, folderId=%v", got)
	}
}

func TestParse_ConjunctionInsideContentDoesNotSplit(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("create a file called a.txt with content foo and bar", nil)
	if intent.Primary != drive.OpCreateFile {
		t.Fatalf("primary=%q", intent.Primary)
	}
	if len(intent.Secondary) != 0 {
		t.Fatalf("secondary=%+v, want none", intent.Secondary)
	}
	if got := intent.Parameters["content"]; got != "foo and bar" {
		t.Fatalf("content=%v, want %q", got, "foo and bar")
	}
}

func TestParse_ContextFillsFolderAndSelection(t *testing.T) {
	t.Parallel()

	convCtx := &Context{CurrentFolder: "d_work", SelectedFiles: []string{"f_123"}}
	p := NewIntentParser()

	list := p.Parse("list my files", convCtx)
	if got := list.Parameters["folderId"]; got != "d_work" {
		t.Fatalf("folderId=%v", got)
	}

	read := p.Parse("read it back to me", convCtx)
	if read.Primary != drive.OpReadDocument {
		t.Fatalf("primary=%q", read.Primary)
	}
	if got := read.Parameters["fileId"]; got != "f_123" {
		t.Fatalf("fileId=%v", got)
	}
}

func TestParse_RoleNormalization(t *testing.T) {
	t.Parallel()

	intent := NewIntentParser().Parse("share plan.txt with eve@example.com as an editor", nil)
	if got := intent.Parameters["role"]; got != "writer" {
		t.Fatalf("role=%v, want writer", got)
	}
}
