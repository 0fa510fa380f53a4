package models

import "wabadash/internal/constants"

// Page is a 1-based page request
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page to valid bounds
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = constants.DefaultPageSize
	}
	if p.Size > constants.MaxPageSize {
		p.Size = constants.MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Number - 1) * n.Size
}
