package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOutputOptions_OutputPath(t *testing.T) {
	tests := []struct {
		name  string
		opts  OutputOptions
		input string
		want  string
	}{
		{"suffix in output dir", OutputOptions{OutputDir: "/out", Suffix: "_clean"}, "/in/a.pdf", "/out/a_clean.pdf"},
		{"no output dir uses input dir", OutputOptions{Suffix: "_clean"}, "/in/a.pdf", "/in/a_clean.pdf"},
		{"empty suffix coincides with input", OutputOptions{}, "/in/a.pdf", "/in/a.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.outputPath(tt.input); got != filepath.FromSlash(tt.want) {
				t.Fatalf("outputPath(%s) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestOutputOptions_IsDestructive(t *testing.T) {
	input := "/in/a.pdf"

	if !(OutputOptions{OverwriteExisting: true}).IsDestructive(input) {
		t.Fatal("empty suffix + overwrite + same path must be flagged destructive")
	}
	if (OutputOptions{Suffix: "_clean", OverwriteExisting: true}).IsDestructive(input) {
		t.Fatal("a suffix means the output cannot clobber the input")
	}
	if (OutputOptions{}).IsDestructive(input) {
		t.Fatal("without overwrite the operation never destroys the input")
	}
	if (OutputOptions{OutputDir: "/elsewhere", OverwriteExisting: true}).IsDestructive(input) {
		t.Fatal("a different output directory is not in-place")
	}
}

func TestApplyRemoval_SkipsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.pdf")
	existing := filepath.Join(dir, "a_clean.pdf")
	writeFile(t, input, []byte("%PDF-1.7 bogus"))
	writeFile(t, existing, []byte("old output"))

	opts := OutputOptions{Suffix: "_clean"}
	results, err := ApplyRemoval(context.Background(), []string{input}, map[string]bool{"h": true}, opts)
	if err != nil {
		t.Fatalf("ApplyRemoval: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeSkipped {
		t.Fatalf("results = %+v, want one Skipped", results)
	}

	data, _ := os.ReadFile(existing)
	if string(data) != "old output" {
		t.Fatal("existing output was touched despite overwrite=false")
	}
}

func TestApplyRemoval_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	corrupt1 := filepath.Join(dir, "one.pdf")
	corrupt2 := filepath.Join(dir, "two.pdf")
	missing := filepath.Join(dir, "gone.pdf")
	writeFile(t, corrupt1, []byte("not a pdf at all"))
	writeFile(t, corrupt2, []byte("%PDF-1.4 truncated"))

	opts := OutputOptions{OutputDir: filepath.Join(dir, "out"), Suffix: "_clean"}
	results, err := ApplyRemoval(context.Background(), []string{corrupt1, missing, corrupt2}, map[string]bool{"h": true}, opts)
	if err != nil {
		t.Fatalf("ApplyRemoval: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want one per input", len(results))
	}
	for i, r := range results {
		if r.Outcome != OutcomeFailed {
			t.Fatalf("result %d = %+v, want Failed", i, r)
		}
		if r.Reason == "" {
			t.Fatalf("result %d has no reason", i)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("output dir was not created: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed inputs left %d output file(s)", len(entries))
	}
}

func TestApplyRemoval_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.pdf")
	writeFile(t, input, []byte("%PDF-1.7 bogus"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := ApplyRemoval(ctx, []string{input, input}, map[string]bool{"h": true}, OutputOptions{Suffix: "_x"})
	if err != nil {
		t.Fatalf("ApplyRemoval: %v", err)
	}
	for _, r := range results {
		if r.Outcome != OutcomeSkipped || r.Reason != "canceled" {
			t.Fatalf("result = %+v, want Skipped/canceled", r)
		}
	}
}

func TestApplyRemoval_UncreatableOutputDirIsHardError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeFile(t, blocker, []byte("x"))

	opts := OutputOptions{OutputDir: filepath.Join(blocker, "out")}
	if _, err := ApplyRemoval(context.Background(), []string{"a.pdf"}, map[string]bool{"h": true}, opts); err == nil {
		t.Fatal("expected a precondition failure for an uncreatable output directory")
	}
}
