// Package pagination provides page-number pagination utilities.
//
// Pages are 1-based. The zero Page means "no pagination": every row.
package pagination

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidPage is returned for page numbers below 1.
var ErrInvalidPage = errors.New("page must be a positive integer")

// Page selects a window of a result set.
type Page struct {
	Number int
	Size   int
}

// New returns page number of size rows. number 0 disables pagination.
func New(number, size int) (Page, error) {
	if number < 0 || (number > 0 && size <= 0) {
		return Page{}, ErrInvalidPage
	}
	if number == 0 {
		return Page{}, nil
	}
	return Page{Number: number, Size: size}, nil
}

// Parse reads a page number from a query parameter. An empty string is
// page 0 (no pagination).
func Parse(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ErrInvalidPage
	}
	return n, nil
}

// Enabled reports whether the page restricts the result set.
func (p Page) Enabled() bool {
	return p.Number > 0 && p.Size > 0
}

// Offset is the number of rows before the page.
func (p Page) Offset() int {
	if !p.Enabled() {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Limit is the maximum number of rows on the page, or 0 when disabled.
func (p Page) Limit() int {
	if !p.Enabled() {
		return 0
	}
	return p.Size
}

// Slice returns the rows of items that fall on the page.
func Slice[T any](items []T, p Page) []T {
	if !p.Enabled() {
		return items
	}
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
