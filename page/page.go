// Package page implements pagination math over in-memory collections.
package page

// Window selects a page. Values outside the valid range are clamped by
// [Slice], never rejected.
type Window struct {
	CurrentPage int
	PageSize    int
}

// Result is the page selected from a collection.
type Result[T any] struct {
	PageItems   []T
	TotalPages  int
	TotalItems  int
	CurrentPage int // clamped page actually returned
	HasPrev     bool
	HasNext     bool
}

// Slice returns the items of the page selected by w. TotalPages is at least 1,
// so an empty collection has one empty page. A PageSize <= 0 is treated as 1
// and the current page is clamped into [1, TotalPages].
func Slice[T any](items []T, w Window) Result[T] {
	w = w.Clamp(len(items))

	start := (w.CurrentPage - 1) * w.PageSize
	end := min(start+w.PageSize, len(items))
	pages := TotalPages(len(items), w.PageSize)

	return Result[T]{
		PageItems:   items[start:end:end],
		TotalPages:  pages,
		TotalItems:  len(items),
		CurrentPage: w.CurrentPage,
		HasPrev:     w.CurrentPage > 1,
		HasNext:     w.CurrentPage < pages,
	}
}

// TotalPages returns max(1, ceil(totalItems/pageSize)).
func TotalPages(totalItems, pageSize int) int {
	pageSize = max(pageSize, 1)
	return max(1, (totalItems+pageSize-1)/pageSize)
}

// GoTo returns w moved to page n. The result is clamped later by Slice.
func (w Window) GoTo(n int) Window {
	w.CurrentPage = n
	return w
}

// WithPageSize returns w with a new page size, back on page 1.
func (w Window) WithPageSize(n int) Window {
	return Window{CurrentPage: 1, PageSize: n}
}

// Clamp normalizes w for a collection of totalItems items.
func (w Window) Clamp(totalItems int) Window {
	w.PageSize = max(w.PageSize, 1)
	w.CurrentPage = min(max(w.CurrentPage, 1), TotalPages(totalItems, w.PageSize))
	return w
}
