package engine

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/pager"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
)

func pageKey(table string) string {
	return strings.ToLower(table)
}

// scan returns the rows of t in page order, padded to the current column
// count, and the number of rows that failed to decode or verify.
func (e *Engine) scan(t *schema.Table) ([][]any, int) {
	var rows [][]any
	corrupt := 0
	for _, id := range e.meta.Tables[pageKey(t.Name)] {
		page := e.pager.Get(id)
		if page == nil {
			logging.Warn("table page unreadable", "table", t.Name, "page_id", id)
			corrupt++
			continue
		}
		for _, rec := range page.Records() {
			values, err := record.DecodeRow(rec.Payload)
			if err != nil {
				logging.CorruptRow(t.Name, id, rec.Offset, "error", err.Error())
				corrupt++
				continue
			}
			rows = append(rows, t.PadRow(values))
		}
	}
	return rows, corrupt
}

// rows is scan without the corruption count.
func (e *Engine) rows(t *schema.Table) [][]any {
	rows, _ := e.scan(t)
	return rows
}

func (e *Engine) encodeRow(t *schema.Table, row []any) ([]byte, error) {
	payload, err := record.EncodeRow(row)
	if err != nil {
		return nil, errors.NewValidation("values", err.Error())
	}
	if pager.RecordHeaderSize+len(payload) > e.pager.PageSize()-pager.PageHeaderSize {
		return nil, errors.NewValidation("values",
			fmt.Sprintf("row of %d bytes does not fit in a page of table %s", len(payload), t.Name))
	}
	return payload, nil
}

// appendRow stores row at the end of t, linking a new TABLE page when the
// last one is full.
func (e *Engine) appendRow(t *schema.Table, row []any) error {
	payload, err := e.encodeRow(t, row)
	if err != nil {
		return err
	}
	return e.appendPayload(t, payload)
}

func (e *Engine) appendPayload(t *schema.Table, payload []byte) error {
	k := pageKey(t.Name)
	ids := e.meta.Tables[k]
	var last *pager.Page
	if len(ids) > 0 {
		last = e.pager.Get(ids[len(ids)-1])
	}
	if last != nil {
		if _, ok := last.AppendRecord(payload); ok {
			return e.pager.Write(last)
		}
	}

	page, err := e.pager.Allocate(pager.PageTable)
	if err != nil {
		return err
	}
	if last != nil {
		last.Next = page.ID
		page.Prev = last.ID
		if err := e.pager.Write(last); err != nil {
			return err
		}
	}
	if _, ok := page.AppendRecord(payload); !ok {
		return errors.NewValidation("values", fmt.Sprintf("row of %d bytes does not fit in a page", len(payload)))
	}
	e.meta.Tables[k] = append(ids, page.ID)
	return e.pager.Write(page)
}

// rewrite replaces the rows of t. The table's pages are reused in order;
// pages left over are abandoned.
func (e *Engine) rewrite(t *schema.Table, rows [][]any) error {
	payloads := make([][]byte, len(rows))
	for i, row := range rows {
		p, err := e.encodeRow(t, row)
		if err != nil {
			return err
		}
		payloads[i] = p
	}

	k := pageKey(t.Name)
	old := e.meta.Tables[k]
	var used []uint32
	var page *pager.Page
	next := 0

	// take moves to the next reusable page, or allocates one.
	take := func() error {
		var p *pager.Page
		for p == nil && next < len(old) {
			p = e.pager.Get(old[next])
			next++
		}
		if p == nil {
			var err error
			if p, err = e.pager.Allocate(pager.PageTable); err != nil {
				return err
			}
		}
		p.Clear()
		p.Type = pager.PageTable
		p.Next, p.Prev = 0, 0
		if page != nil {
			page.Next = p.ID
			p.Prev = page.ID
			if err := e.pager.Write(page); err != nil {
				return err
			}
		}
		page = p
		used = append(used, p.ID)
		return nil
	}

	if len(old) > 0 || len(payloads) > 0 {
		if err := take(); err != nil {
			return err
		}
	}
	for _, p := range payloads {
		if _, ok := page.AppendRecord(p); ok {
			continue
		}
		if err := take(); err != nil {
			return err
		}
		page.AppendRecord(p)
	}
	if page != nil {
		if err := e.pager.Write(page); err != nil {
			return err
		}
	}
	if len(used) == 0 {
		delete(e.meta.Tables, k)
	} else {
		e.meta.Tables[k] = used
	}
	return nil
}
