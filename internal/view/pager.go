package view

import "github.com/tinytelemetry/warden/internal/model"

// PageInfo describes the page actually rendered after clamping.
type PageInfo struct {
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
	TotalPages   int `json:"total_pages"`
	TotalRecords int `json:"total_records"`
	// First and Last are 1-based item indexes for "showing X-Y of N".
	// Both are 0 when there is nothing to show.
	First int `json:"first"`
	Last  int `json:"last"`
}

// HasPrev reports whether a previous page exists.
func (p PageInfo) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p PageInfo) HasNext() bool { return p.Page < p.TotalPages }

// TotalPages returns max(1, ceil(count/pageSize)). A non-positive page
// size falls back to the default.
func TotalPages(count, pageSize int) int {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	pages := (count + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// ClampPage forces page into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Paginate slices records for the requested page after clamping it into
// range. Record order is preserved; the returned slice aliases records.
func Paginate(records []model.LogRecord, pageSize, requested int) ([]model.LogRecord, PageInfo) {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	total := TotalPages(len(records), pageSize)
	page := ClampPage(requested, total)

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(records))
	info := PageInfo{
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   total,
		TotalRecords: len(records),
	}
	if start >= end {
		return records[:0:0], info
	}
	info.First = start + 1
	info.Last = end
	return records[start:end:end], info
}

// PageWindow returns up to size consecutive page numbers centred on the
// current page, shifted to stay within [1, TotalPages].
func PageWindow(info PageInfo, size int) []int {
	if size < 1 {
		return nil
	}
	n := min(size, info.TotalPages)
	start := info.Page - size/2
	start = max(1, min(start, info.TotalPages-n+1))
	pages := make([]int, n)
	for i := range pages {
		pages[i] = start + i
	}
	return pages
}
