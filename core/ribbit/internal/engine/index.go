package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/btree"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
)

// blobKey and tupleKey make blob and multi-column keys comparable.
type (
	blobKey  string
	tupleKey string
)

// index is the in-memory B-tree behind a catalog index. Each key maps to
// the rows holding it, in table order.
type index struct {
	def  *schema.Index
	cols []int
	tree *btree.BTree[any, [][]any]
}

func indexName(name string) string {
	return strings.ToLower(name)
}

// compareKeys orders index keys. NULL sorts before every other value so
// it never shares a bucket with zero.
func compareKeys(a, b any) int {
	if ta, ok := a.(tupleKey); ok {
		tb, _ := b.(tupleKey)
		va, _ := record.Decode([]byte(ta))
		vb, _ := record.Decode([]byte(tb))
		for i := 0; i < len(va) && i < len(vb); i++ {
			if c := compareKeys(keyOf(va[i]), keyOf(vb[i])); c != 0 {
				return c
			}
		}
		return len(va) - len(vb)
	}
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := a.(blobKey); ok {
		a = []byte(x)
	}
	if x, ok := b.(blobKey); ok {
		b = []byte(x)
	}
	return record.Compare(a, b)
}

// keyOf converts a stored value into a comparable tree key.
func keyOf(v any) any {
	if b, ok := v.([]byte); ok {
		return blobKey(b)
	}
	return v
}

func (ix *index) key(row []any) any {
	if len(ix.cols) == 1 {
		return keyOf(row[ix.cols[0]])
	}
	values := make([]any, len(ix.cols))
	for i, c := range ix.cols {
		values[i] = row[c]
	}
	b, _ := record.Encode(values)
	return tupleKey(b)
}

// lookupKey converts a caller supplied key: a single value, or a slice of
// values for a multi-column index.
func (ix *index) lookupKey(v any) (any, error) {
	if len(ix.cols) == 1 {
		n, err := record.Normalize(v)
		if err != nil {
			return nil, errors.NewValidation("key", err.Error())
		}
		return keyOf(n), nil
	}
	parts, ok := v.([]any)
	if !ok || len(parts) != len(ix.cols) {
		return nil, errors.NewValidation("key", fmt.Sprintf("index %s needs %d key values", ix.def.Name, len(ix.cols)))
	}
	values := make([]any, len(parts))
	for i, p := range parts {
		n, err := record.Normalize(p)
		if err != nil {
			return nil, errors.NewValidation("key", err.Error())
		}
		values[i] = n
	}
	b, err := record.Encode(values)
	if err != nil {
		return nil, errors.NewValidation("key", err.Error())
	}
	return tupleKey(b), nil
}

// add appends row to its key's bucket.
func (ix *index) add(row []any) {
	k := ix.key(row)
	bucket, _ := ix.tree.Search(k)
	ix.tree.Insert(k, append(bucket[:len(bucket):len(bucket)], row))
}

// load replaces the tree contents with rows.
func (ix *index) load(rows [][]any) {
	type keyed struct {
		key any
		row []any
	}
	all := make([]keyed, len(rows))
	for i, r := range rows {
		all[i] = keyed{ix.key(r), r}
	}
	slices.SortStableFunc(all, func(a, b keyed) int { return compareKeys(a.key, b.key) })

	var entries []btree.Entry[any, [][]any]
	for _, kr := range all {
		if n := len(entries); n > 0 && compareKeys(entries[n-1].Key, kr.key) == 0 {
			entries[n-1].Value = append(entries[n-1].Value, kr.row)
			continue
		}
		entries = append(entries, btree.Entry[any, [][]any]{Key: kr.key, Value: [][]any{kr.row}})
	}
	ix.tree.BulkLoad(entries)
}

// buildIndex creates the tree for def over the current rows of its table.
func (e *Engine) buildIndex(def *schema.Index) error {
	t, ok := e.catalog.Table(def.Table)
	if !ok {
		return errors.NewTableNotFound(def.Table)
	}
	ix := &index{
		def:  def,
		tree: btree.New[any, [][]any](e.opts.BTreeOrder, e.opts.BTreeCache, compareKeys),
	}
	for _, c := range def.Columns {
		i := t.ColumnIndex(c)
		if i < 0 {
			return errors.NewColumnNotFound(t.Name, c)
		}
		ix.cols = append(ix.cols, i)
	}
	ix.load(e.rows(t))
	e.indexes[indexName(def.Name)] = ix
	return nil
}

// tableIndexes returns the trees over table.
func (e *Engine) tableIndexes(table string) []*index {
	var out []*index
	for _, def := range e.catalog.Indexes(table) {
		if ix, ok := e.indexes[indexName(def.Name)]; ok {
			out = append(out, ix)
		}
	}
	return out
}

// reindex reloads every tree over table from storage.
func (e *Engine) reindex(t *schema.Table) {
	ixs := e.tableIndexes(t.Name)
	if len(ixs) == 0 {
		return
	}
	rows := e.rows(t)
	for _, ix := range ixs {
		ix.load(rows)
	}
}

func (e *Engine) index(name string) (*index, error) {
	ix, ok := e.indexes[indexName(name)]
	if !ok {
		return nil, errors.NewSchema("index", name, "does not exist")
	}
	return ix, nil
}

func cloneRows(buckets ...[][]any) [][]any {
	var out [][]any
	for _, b := range buckets {
		for _, r := range b {
			out = append(out, slices.Clone(r))
		}
	}
	if out == nil {
		out = [][]any{}
	}
	return out
}

// IndexLookup returns the rows whose indexed value equals key. For a
// multi-column index key is a []any with one value per column.
func (e *Engine) IndexLookup(name string, key any) ([][]any, error) {
	ix, err := e.index(name)
	if err != nil {
		return nil, err
	}
	k, err := ix.lookupKey(key)
	if err != nil {
		return nil, err
	}
	bucket, _ := ix.tree.Search(k)
	return cloneRows(bucket), nil
}

// IndexRange returns the rows whose indexed value lies in [lo, hi], in
// key order.
func (e *Engine) IndexRange(name string, lo, hi any) ([][]any, error) {
	ix, err := e.index(name)
	if err != nil {
		return nil, err
	}
	klo, err := ix.lookupKey(lo)
	if err != nil {
		return nil, err
	}
	khi, err := ix.lookupKey(hi)
	if err != nil {
		return nil, err
	}
	entries := ix.tree.Range(klo, khi)
	buckets := make([][][]any, len(entries))
	for i, en := range entries {
		buckets[i] = en.Value
	}
	return cloneRows(buckets...), nil
}

// IndexStats returns the tree statistics of the named index.
func (e *Engine) IndexStats(name string) (btree.Stats, error) {
	ix, err := e.index(name)
	if err != nil {
		return btree.Stats{}, err
	}
	return ix.tree.Stats(), nil
}
