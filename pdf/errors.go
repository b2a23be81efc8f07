package pdf

import "fmt"

// OpenError reports a file that could not be opened as a PDF
// (unreadable, corrupt, or encrypted without credentials).
type OpenError struct {
	File string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open %s: %v", e.File, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// DecodeError reports an image reference whose raster content could not
// be decoded. The reference is excluded from candidate aggregation.
type DecodeError struct {
	File   string
	PageNr int
	ObjNr  int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image obj %d on page %d of %s: %v", e.ObjNr, e.PageNr, e.File, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EditError reports a page whose content stream could not be safely
// rewritten. The page is left unmodified.
type EditError struct {
	PageNr int
	ObjNr  int
	Err    error
}

func (e *EditError) Error() string {
	return fmt.Sprintf("cannot edit page %d (obj %d): %v", e.PageNr, e.ObjNr, e.Err)
}

func (e *EditError) Unwrap() error { return e.Err }

// SaveError reports a failed final write. No partial file is left at
// the destination.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("cannot save %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
