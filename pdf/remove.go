package pdf

import (
	"context"
	"log"
)

// PageIssue records a page that could not be fully edited. The rest of
// the document is still processed and saved.
type PageIssue struct {
	PageNr int    `json:"page"`
	Reason string `json:"reason"`
}

// EditReport summarizes one document's removal pass.
type EditReport struct {
	Removed    int         `json:"removed"` // image references deleted
	PageIssues []PageIssue `json:"page_issues,omitempty"`
}

// RemoveWatermarks deletes every image reference whose content hash is
// in selected. Hashes are recomputed on the open document: object
// numbers from an earlier scan of another handle mean nothing here.
// Selected hashes that do not occur in this document are no-ops. A
// page that cannot be edited is recorded and skipped; the operation is
// confluent, so the page-ascending processing order never changes the
// outcome. Cancellation via ctx stops cleanly between pages.
func RemoveWatermarks(ctx context.Context, doc *Document, selected map[string]bool) (*EditReport, error) {
	report := &EditReport{}
	if len(selected) == 0 {
		return report, nil
	}

	// A wholesale extraction failure means nothing can be located and
	// aborts the edit; per-image decode errors still yield usable refs.
	refs, errs := doc.Images(nil)
	if refs == nil && len(errs) > 0 {
		return report, errs[0]
	}

	byPage := make(map[int][]ImageRef)
	var pages []int
	for _, ref := range refs {
		if ref.Hash == "" || !selected[ref.Hash] {
			continue
		}
		if _, seen := byPage[ref.PageNr]; !seen {
			pages = append(pages, ref.PageNr)
		}
		byPage[ref.PageNr] = append(byPage[ref.PageNr], ref)
	}

	for _, pageNr := range pages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		deleted := make(map[int]bool) // objNr drawn twice on one page is deleted once
		for _, ref := range byPage[pageNr] {
			if deleted[ref.ObjNr] {
				continue
			}
			if err := doc.DeleteImage(pageNr, ref.ObjNr); err != nil {
				log.Printf("remove: %s page %d obj %d: %v", doc.Path, pageNr, ref.ObjNr, err)
				report.PageIssues = append(report.PageIssues, PageIssue{PageNr: pageNr, Reason: err.Error()})
				continue
			}
			deleted[ref.ObjNr] = true
			report.Removed++
		}
	}
	return report, nil
}
