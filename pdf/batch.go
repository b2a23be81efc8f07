package pdf

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Outcome classifies one file's removal result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// OutputOptions controls where processed files land.
type OutputOptions struct {
	// OutputDir receives the processed files. Empty means each output
	// is written next to its input.
	OutputDir string `json:"output_dir"`
	// Suffix is appended to the basename before the extension. Empty
	// makes the output path coincide with the input path.
	Suffix string `json:"suffix"`
	// OverwriteExisting allows replacing files already at the output
	// path. Without it, an existing output means the input is skipped.
	OverwriteExisting bool `json:"overwrite_existing"`
	// CopyUnprocessed copies files containing none of the selected
	// watermarks to the output location as-is.
	CopyUnprocessed bool `json:"copy_unprocessed"`
}

// outputPath computes where the processed copy of input goes:
// outputDir (or the input's directory) / basename + suffix + ext.
func (o OutputOptions) outputPath(input string) string {
	dir := o.OutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(filepath.Base(input), ext)
	return filepath.Join(dir, base+o.Suffix+ext)
}

// IsDestructive reports whether processing input would overwrite it in
// place: empty suffix, overwriting enabled, and the computed output
// path equal to the input path. The combination is allowed, but
// callers should warn the user before proceeding.
func (o OutputOptions) IsDestructive(input string) bool {
	return o.Suffix == "" && o.OverwriteExisting && samePath(o.outputPath(input), input)
}

func samePath(a, b string) bool {
	ra, err1 := filepath.Abs(a)
	rb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return ra == rb
}

// FileResult is the per-file outcome of a removal batch.
type FileResult struct {
	File       string      `json:"file"`
	Outcome    Outcome     `json:"outcome"`
	OutputPath string      `json:"output_path,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	PageIssues []PageIssue `json:"page_issues,omitempty"`
}

// ApplyRemoval runs the removal editor over each file and writes the
// sanitized copies per the output options. One file's failure never
// aborts the rest; every input yields exactly one FileResult, in input
// order. Cancellation leaves files processed so far completed and the
// rest skipped. The only hard failure is an output directory that
// cannot be created.
func ApplyRemoval(ctx context.Context, files []string, selectedHashes map[string]bool, opts OutputOptions) ([]FileResult, error) {
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("output directory %s: %w", opts.OutputDir, err)
		}
	}

	results := make([]FileResult, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			results = append(results, FileResult{File: file, Outcome: OutcomeSkipped, Reason: "canceled"})
			continue
		}
		results = append(results, removeFromFile(ctx, file, selectedHashes, opts))
	}
	return results, nil
}

func removeFromFile(ctx context.Context, file string, selectedHashes map[string]bool, opts OutputOptions) FileResult {
	out := opts.outputPath(file)

	if !opts.OverwriteExisting {
		if _, err := os.Stat(out); err == nil {
			return FileResult{File: file, Outcome: OutcomeSkipped, Reason: fmt.Sprintf("output %s already exists", out)}
		}
	}

	doc, err := OpenDocument(file)
	if err != nil {
		return FileResult{File: file, Outcome: OutcomeFailed, Reason: err.Error()}
	}
	defer doc.Close()

	report, err := RemoveWatermarks(ctx, doc, selectedHashes)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Canceled mid-document: the original is untouched.
			return FileResult{File: file, Outcome: OutcomeSkipped, Reason: err.Error()}
		}
		return FileResult{File: file, Outcome: OutcomeFailed, Reason: err.Error()}
	}

	if report.Removed == 0 && len(report.PageIssues) == 0 {
		if !opts.CopyUnprocessed {
			return FileResult{File: file, Outcome: OutcomeSkipped, Reason: "no selected watermark occurrences"}
		}
		if samePath(out, file) {
			return FileResult{File: file, Outcome: OutcomeSkipped, Reason: "source and destination are the same"}
		}
		if err := copyBytes(doc.RawBytes(), out); err != nil {
			return FileResult{File: file, Outcome: OutcomeFailed, Reason: err.Error()}
		}
		log.Printf("copied unprocessed %s -> %s", file, out)
		return FileResult{File: file, Outcome: OutcomeSuccess, OutputPath: out}
	}

	// Occurrences that could not be edited still leave a document worth
	// keeping: save it and carry the page issues on the result. Only a
	// failing save makes the file Failed.

	if err := doc.SaveAs(out); err != nil {
		return FileResult{File: file, Outcome: OutcomeFailed, Reason: err.Error()}
	}
	log.Printf("removed %d watermark reference(s): %s -> %s", report.Removed, file, out)
	return FileResult{File: file, Outcome: OutcomeSuccess, OutputPath: out, PageIssues: report.PageIssues}
}

// copyBytes writes data to path via a temp file and atomic rename, the
// same discipline SaveAs uses.
func copyBytes(data []byte, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dewm-*.pdf")
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &SaveError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &SaveError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &SaveError{Path: path, Err: err}
	}
	return nil
}
