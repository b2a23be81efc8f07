package pdf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageSpecifier parses a page specification string and returns a
// sorted, deduplicated list of page numbers.
// Supports formats: "1", "1,3", "1-5", "1,3-5,7"
func ParsePageSpecifier(pages string) ([]int, error) {
	pages = strings.ReplaceAll(pages, " ", "")
	if pages == "" {
		return nil, fmt.Errorf("empty page specification")
	}

	var pageList []int
	for _, part := range strings.Split(pages, ",") {
		if lo, hi, isRange := strings.Cut(part, "-"); isRange {
			start, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("invalid start page: %q", lo)
			}
			end, err := strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("invalid end page: %q", hi)
			}
			if start > end {
				return nil, fmt.Errorf("invalid range: start > end (%d > %d)", start, end)
			}
			for i := start; i <= end; i++ {
				pageList = append(pageList, i)
			}
		} else {
			pageNum, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid page number: %q", part)
			}
			pageList = append(pageList, pageNum)
		}
	}

	sort.Ints(pageList)
	deduped := pageList[:0]
	for i, page := range pageList {
		if i == 0 || page != pageList[i-1] {
			deduped = append(deduped, page)
		}
	}
	return deduped, nil
}

// ValidatePageNumbers checks that all page numbers fall within the
// document's page count.
func ValidatePageNumbers(pages []int, totalPages int) error {
	for _, page := range pages {
		if page < 1 {
			return fmt.Errorf("page numbers must be positive, got %d", page)
		}
		if page > totalPages {
			return fmt.Errorf("page %d exceeds total pages (%d)", page, totalPages)
		}
	}
	return nil
}
