package view

import (
	"time"

	"github.com/tinytelemetry/warden/internal/model"
)

// Controller holds the user's filter and page position over the latest
// snapshot and recomputes the output on every change. It is not safe for
// concurrent use; callers drive it from one event loop.
type Controller struct {
	loc      *time.Location
	pageSize int
	filter   model.FilterSpec
	page     int

	seq     uint64
	records []model.LogRecord

	out      Output
	selected *model.LogRecord
}

// NewController creates a controller with an empty snapshot. Hours are
// bucketed in loc, or time.Local when nil.
func NewController(pageSize int, loc *time.Location) *Controller {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	if loc == nil {
		loc = time.Local
	}
	c := &Controller{
		loc:      loc,
		pageSize: pageSize,
		filter:   model.AllFilter(),
		page:     1,
	}
	c.recompute()
	return c
}

func (c *Controller) recompute() {
	c.out = Project(c.records, Query{Filter: c.filter, Page: c.page, PageSize: c.pageSize}, c.loc)
	c.page = c.out.Page.Page
}

// ApplySnapshot swaps in a newly committed snapshot. The page position is
// kept but clamped, and an open detail view is left untouched. Snapshots
// older than the current one are ignored.
func (c *Controller) ApplySnapshot(seq uint64, records []model.LogRecord) bool {
	if seq != 0 && seq < c.seq {
		return false
	}
	c.seq = seq
	c.records = records
	c.recompute()
	return true
}

// Seq returns the sequence of the snapshot currently shown.
func (c *Controller) Seq() uint64 { return c.seq }

// Records returns the full current snapshot.
func (c *Controller) Records() []model.LogRecord { return c.records }

// Output returns the current projection.
func (c *Controller) Output() Output { return c.out }

// Filter returns the current filter criteria.
func (c *Controller) Filter() model.FilterSpec { return c.filter }

// SetFilter replaces every criterion at once. Any change returns to page 1.
func (c *Controller) SetFilter(f model.FilterSpec) {
	if f.Method == "" {
		f.Method = model.MethodAll
	}
	if f.Decision == "" {
		f.Decision = model.DecisionAll
	}
	if f == c.filter {
		return
	}
	c.filter = f
	c.page = 1
	c.recompute()
}

// SetSearch changes the search text.
func (c *Controller) SetSearch(s string) {
	f := c.filter
	f.Search = s
	c.SetFilter(f)
}

// SetMethod changes the method criterion.
func (c *Controller) SetMethod(m model.Method) {
	f := c.filter
	f.Method = m
	c.SetFilter(f)
}

// SetDecision changes the decision criterion.
func (c *Controller) SetDecision(d model.Decision) {
	f := c.filter
	f.Decision = d
	c.SetFilter(f)
}

// SetStatus changes the status criterion; 0 matches any status.
func (c *Controller) SetStatus(code int) {
	f := c.filter
	f.Status = code
	c.SetFilter(f)
}

// SetPage requests a page. Out-of-range requests are clamped.
func (c *Controller) SetPage(page int) {
	c.page = page
	c.recompute()
}

// NextPage advances one page if possible.
func (c *Controller) NextPage() { c.SetPage(c.page + 1) }

// PrevPage goes back one page if possible.
func (c *Controller) PrevPage() { c.SetPage(c.page - 1) }

// SetPageSize changes the page size and re-clamps the current page.
func (c *Controller) SetPageSize(size int) {
	if size < 1 || size == c.pageSize {
		return
	}
	c.pageSize = size
	c.recompute()
}

// Select opens the detail view on a copy of r. The copy is not refreshed
// when later snapshots arrive.
func (c *Controller) Select(r model.LogRecord) {
	c.selected = &r
}

// SelectIndex opens the detail view on the i-th visible record.
func (c *Controller) SelectIndex(i int) bool {
	if i < 0 || i >= len(c.out.Visible) {
		return false
	}
	c.Select(c.out.Visible[i])
	return true
}

// Selected returns the record shown in the detail view, or nil.
func (c *Controller) Selected() *model.LogRecord { return c.selected }

// CloseDetail clears the detail view selection.
func (c *Controller) CloseDetail() { c.selected = nil }
