package pdf

import (
	"context"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Threshold gates the minimum recurrence an image needs before it is
// considered a watermark candidate. Count takes precedence when set;
// otherwise Ratio is applied to the total number of pages scanned.
// Lower values are more permissive.
type Threshold struct {
	Ratio float64 // minimum page-presence ratio, e.g. 0.8
	Count int     // minimum absolute page count; overrides Ratio when > 0
}

// minPages converts the threshold into the minimum number of pages an
// image must appear on, given how many pages were scanned.
func (t Threshold) minPages(totalPages int) int {
	if t.Count > 0 {
		return t.Count
	}
	min := int(float64(totalPages) * t.Ratio)
	if min < 1 {
		min = 1
	}
	return min
}

// Occurrence is one sighting of a candidate image: which file, which
// page, and the document-local object number at scan time. Object
// numbers are not stable across re-opens and are re-derived before
// removal.
type Occurrence struct {
	File   string `json:"file"`
	PageNr int    `json:"page"`
	ObjNr  int    `json:"obj"`
}

// Candidate is one image content-hash group that recurred on enough
// pages to look like a watermark.
type Candidate struct {
	Hash        string       `json:"hash"`
	Thumbnail   []byte       `json:"thumbnail,omitempty"` // PNG, base64 in JSON
	PageCount   int          `json:"page_count"`          // distinct pages the image appears on
	Ratio       float64      `json:"ratio"`               // PageCount / total pages scanned
	Occurrences []Occurrence `json:"occurrences"`
}

// FileError records a per-file scan failure. Scanning continues with
// the remaining files.
type FileError struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// ScanReport is the complete result of one scan. A new scan replaces
// the previous report wholesale; reports are never merged.
type ScanReport struct {
	Candidates []Candidate `json:"candidates"`
	TotalPages int         `json:"total_pages"`
	Errors     []FileError `json:"errors,omitempty"`
}

// scanAccumulator aggregates image sightings across documents. Each
// document is scanned into its own accumulator and the results are
// merged, so there is no shared mutable state inside a scan worker.
type scanAccumulator struct {
	totalPages  int
	occurrences map[string][]Occurrence // hash -> all sightings
	pageSets    map[string]int          // hash -> distinct (file,page) count
	samples     map[string][]byte       // hash -> raw bytes of first sighting
	sampleOrder []string                // hashes in first-seen order, for determinism
}

func newScanAccumulator() *scanAccumulator {
	return &scanAccumulator{
		occurrences: make(map[string][]Occurrence),
		pageSets:    make(map[string]int),
		samples:     make(map[string][]byte),
	}
}

// addDocument folds one document's references into the accumulator.
// An image drawn several times on the same page counts once for that
// page: recurrence is measured in page presence, not draw operations.
func (a *scanAccumulator) addDocument(file string, pageCount int, refs []ImageRef) {
	a.totalPages += pageCount

	seenOnPage := make(map[string]map[int]struct{})
	for _, ref := range refs {
		if ref.Hash == "" {
			continue // undecodable, excluded from aggregation
		}
		a.occurrences[ref.Hash] = append(a.occurrences[ref.Hash], Occurrence{File: file, PageNr: ref.PageNr, ObjNr: ref.ObjNr})
		pages := seenOnPage[ref.Hash]
		if pages == nil {
			pages = make(map[int]struct{})
			seenOnPage[ref.Hash] = pages
		}
		if _, dup := pages[ref.PageNr]; !dup {
			pages[ref.PageNr] = struct{}{}
			a.pageSets[ref.Hash]++
		}
		if _, ok := a.samples[ref.Hash]; !ok {
			a.samples[ref.Hash] = ref.data
			a.sampleOrder = append(a.sampleOrder, ref.Hash)
		}
	}
}

// merge folds another accumulator into this one. Deterministic: the
// caller merges per-document accumulators in input order.
func (a *scanAccumulator) merge(b *scanAccumulator) {
	a.totalPages += b.totalPages
	for hash, occs := range b.occurrences {
		a.occurrences[hash] = append(a.occurrences[hash], occs...)
	}
	for hash, n := range b.pageSets {
		a.pageSets[hash] += n
	}
	for _, hash := range b.sampleOrder {
		if _, ok := a.samples[hash]; !ok {
			a.samples[hash] = b.samples[hash]
			a.sampleOrder = append(a.sampleOrder, hash)
		}
	}
}

// candidates applies the threshold and produces the final ordered
// candidate list: descending page presence, ties broken by ascending
// hash.
func (a *scanAccumulator) candidates(threshold Threshold) []Candidate {
	if a.totalPages == 0 {
		return nil
	}
	minPages := threshold.minPages(a.totalPages)

	var out []Candidate
	for hash, pageCount := range a.pageSets {
		if pageCount < minPages {
			continue
		}
		c := Candidate{
			Hash:        hash,
			PageCount:   pageCount,
			Ratio:       float64(pageCount) / float64(a.totalPages),
			Occurrences: a.occurrences[hash],
		}
		if thumb, err := makeThumbnail(a.samples[hash]); err == nil {
			c.Thumbnail = thumb
		} else {
			log.Printf("thumbnail for %.12s: %v", hash, err)
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PageCount != out[j].PageCount {
			return out[i].PageCount > out[j].PageCount
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

// ScanFiles opens each file, hashes every image reference, and returns
// the images recurring on at least the threshold's share of all pages
// scanned. pageSpec optionally restricts which pages are read
// ("1,3-5"; empty scans everything). Files that fail to open are
// reported in the result and do not abort the scan. Documents are
// scanned in parallel; cancellation via ctx stops cleanly between
// documents.
func ScanFiles(ctx context.Context, paths []string, threshold Threshold, pageSpec string) (*ScanReport, error) {
	var restrict []int
	if pageSpec != "" {
		pages, err := ParsePageSpecifier(pageSpec)
		if err != nil {
			return nil, err
		}
		restrict = pages
	}

	var mu sync.Mutex
	perFile := make([]*scanAccumulator, len(paths))
	var fileErrs []FileError

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallelScans)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			acc, errs := scanOne(path, restrict)
			mu.Lock()
			perFile[i] = acc
			fileErrs = append(fileErrs, errs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := newScanAccumulator()
	for _, acc := range perFile {
		if acc != nil {
			total.merge(acc)
		}
	}

	report := &ScanReport{
		Candidates: total.candidates(threshold),
		TotalPages: total.totalPages,
		Errors:     fileErrs,
	}
	log.Printf("scan: %d file(s), %d page(s), %d candidate(s)", len(paths), report.TotalPages, len(report.Candidates))
	return report, nil
}

// scanOne scans a single document into a fresh accumulator. Open
// failures and per-image decode failures are returned as FileErrors.
func scanOne(path string, restrict []int) (*scanAccumulator, []FileError) {
	doc, err := OpenDocument(path)
	if err != nil {
		return nil, []FileError{{File: path, Reason: err.Error()}}
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	if pageCount == 0 {
		return nil, nil
	}
	if restrict != nil {
		if err := ValidatePageNumbers(restrict, pageCount); err != nil {
			return nil, []FileError{{File: path, Reason: err.Error()}}
		}
		pageCount = len(restrict)
	}

	refs, refErrs := doc.Images(restrict)
	var errs []FileError
	for _, e := range refErrs {
		errs = append(errs, FileError{File: path, Reason: e.Error()})
	}

	acc := newScanAccumulator()
	acc.addDocument(path, pageCount, refs)
	return acc, errs
}
