package tap

import (
	"github.com/tidwall/gjson"
)

const (
	// DefaultPageSize is the number of elements requested per page.
	DefaultPageSize = 1000
	// ElementsKey holds the record collection in Clover list responses.
	ElementsKey = "elements"
)

// OffsetPaginator tracks the offset cursor of one (stream, context) sync.
// It is not safe for concurrent use and must not be reused across contexts.
type OffsetPaginator struct {
	offset   int
	pageSize int
	finished bool
}

// NewOffsetPaginator returns a paginator positioned at start.
func NewOffsetPaginator(start int, pageSize int) *OffsetPaginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &OffsetPaginator{offset: start, pageSize: pageSize}
}

// Current returns the offset of the page about to be requested.
func (p *OffsetPaginator) Current() int {
	return p.offset
}

// PageSize returns the fixed page size.
func (p *OffsetPaginator) PageSize() int {
	return p.pageSize
}

// Finished reports whether the last response ended pagination.
func (p *OffsetPaginator) Finished() bool {
	return p.finished
}

// NextOffset inspects the previous page body and returns the next offset.
// A non-empty elements array means another page may exist. A missing or empty
// elements key, or a body that is not JSON, means there are no more pages.
func (p *OffsetPaginator) NextOffset(body []byte) (int, bool) {
	if !gjson.ValidBytes(body) {
		return 0, false
	}
	elements := gjson.GetBytes(body, ElementsKey)
	if !elements.IsArray() || len(elements.Array()) == 0 {
		return 0, false
	}
	return p.offset + p.pageSize, true
}

// Advance moves the cursor forward using the previous page body.
// It returns false once pagination is finished; the cursor never moves backwards.
func (p *OffsetPaginator) Advance(body []byte) bool {
	if p.finished {
		return false
	}
	next, ok := p.NextOffset(body)
	if !ok || next <= p.offset {
		p.finished = true
		return false
	}
	p.offset = next
	return true
}
