package engine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/pager"
)

// metaVersion is the version of the META document.
const metaVersion = 1

// metaPageID is the page holding the start of the META document.
const metaPageID = 0

// errNotInitialized means page 0 holds no META document yet.
var errNotInitialized = errors.New("database catalog not initialized")

// metaDoc is the JSON document kept in the META page. Tables maps lower
// case table names to their page ids in scan order.
type metaDoc struct {
	Version    int                 `json:"version"`
	DatabaseID string              `json:"database_id"`
	Tables     map[string][]uint32 `json:"tables"`
}

// loadMeta reads the META document from page 0 and its OVERFLOW chain.
func loadMeta(p *pager.Pager) (*metaDoc, error) {
	page := p.Get(metaPageID)
	if page == nil {
		return nil, errors.NewOperational("load catalog", p.Path(), fmt.Errorf("%w: META page unreadable", pager.ErrCorruptPage))
	}
	if page.Type != pager.PageMeta {
		return nil, errors.NewOperational("load catalog", p.Path(), fmt.Errorf("%w: page 0 is %s", pager.ErrCorruptPage, page.Type))
	}
	recs := page.Records()
	if len(recs) == 0 {
		return nil, errNotInitialized
	}

	var data []byte
	seen := map[uint32]bool{metaPageID: true}
	for {
		for _, r := range recs {
			data = append(data, r.Payload...)
		}
		if page.Next == 0 {
			break
		}
		if seen[page.Next] {
			return nil, errors.NewOperational("load catalog", p.Path(), fmt.Errorf("%w: META chain loops at page %d", pager.ErrCorruptPage, page.Next))
		}
		seen[page.Next] = true
		next := page.Next
		if page = p.Get(next); page == nil {
			return nil, errors.NewOperational("load catalog", p.Path(), fmt.Errorf("%w: META overflow page %d unreadable", pager.ErrCorruptPage, next))
		}
		recs = page.Records()
	}

	doc := &metaDoc{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.NewOperational("load catalog", p.Path(), fmt.Errorf("%w: %v", errors.ErrCorrupted, err))
	}
	if doc.Version != metaVersion {
		return nil, errors.NewOperational("load catalog", p.Path(), fmt.Errorf("%w: META version %d", pager.ErrVersionMismatch, doc.Version))
	}
	if doc.Tables == nil {
		doc.Tables = make(map[string][]uint32)
	}
	return doc, nil
}

// newMeta returns the document for a fresh database.
func newMeta() *metaDoc {
	return &metaDoc{
		Version:    metaVersion,
		DatabaseID: uuid.NewString(),
		Tables:     make(map[string][]uint32),
	}
}

// saveMeta writes doc into page 0, continuing into OVERFLOW pages. The
// existing chain is reused before new pages are allocated.
func saveMeta(p *pager.Pager, doc *metaDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode catalog")
	}

	page := p.Get(metaPageID)
	if page == nil {
		return errors.NewOperational("save catalog", p.Path(), fmt.Errorf("%w: META page unreadable", pager.ErrCorruptPage))
	}
	for {
		next := page.Next
		page.Clear()
		chunk := min(len(data), page.Capacity()-pager.RecordHeaderSize)
		if _, ok := page.AppendRecord(data[:chunk]); !ok {
			return errors.NewOperational("save catalog", p.Path(), fmt.Errorf("META chunk of %d bytes does not fit", chunk))
		}
		data = data[chunk:]

		if len(data) == 0 {
			page.Next = 0
			return p.Write(page)
		}

		var succ *pager.Page
		if next != 0 {
			succ = p.Get(next)
		}
		if succ == nil {
			if succ, err = p.Allocate(pager.PageOverflow); err != nil {
				return err
			}
		}
		succ.Prev = page.ID
		page.Next = succ.ID
		if err := p.Write(page); err != nil {
			return err
		}
		page = succ
	}
}
