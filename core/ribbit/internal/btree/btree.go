// Package btree provides an in-memory ordered map built as an order-N
// B-tree with a memoizing LRU cache in front of point lookups.
//
// Leaves hold key/value pairs. Internal nodes hold one separator per
// child boundary; separator i is the largest key reachable through
// child i. Full children are split on the way down during insertion, so
// an insert never needs to walk back up the tree.
package btree

import (
	"cmp"
	"slices"

	"github.com/FocuswithJustin/RibbitDB/core/cache"
)

// Defaults used when New is called with non-positive sizes.
const (
	DefaultOrder     = 256
	DefaultCacheSize = 500
	minOrder         = 3
)

// Entry is a key/value pair returned by Range.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Stats counts tree activity.
type Stats struct {
	Searches  int64
	Inserts   int64
	CacheHits int64
	Size      int
	Height    int
}

type node[K comparable, V any] struct {
	leaf     bool
	keys     []K
	values   []V           // leaves only
	children []*node[K, V] // internal only
}

// BTree is an ordered map. It is not safe for concurrent use.
type BTree[K comparable, V any] struct {
	root  *node[K, V]
	order int
	cmp   func(a, b K) int
	cache cache.Cache[K, V]
	size  int
	stats Stats
}

// New returns an empty tree ordered by cmp.
func New[K comparable, V any](order, cacheSize int, cmp func(a, b K) int) *BTree[K, V] {
	if order <= 0 {
		order = DefaultOrder
	}
	if order < minOrder {
		order = minOrder
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &BTree[K, V]{
		root:  &node[K, V]{leaf: true},
		order: order,
		cmp:   cmp,
		cache: cache.NewLRUCache[K, V](cache.Config[K, V]{MaxSize: cacheSize}),
	}
}

// NewOrdered returns an empty tree over a naturally ordered key type.
func NewOrdered[K cmp.Ordered, V any](order, cacheSize int) *BTree[K, V] {
	return New[K, V](order, cacheSize, cmp.Compare[K])
}

// Order returns the branching order.
func (t *BTree[K, V]) Order() int {
	return t.order
}

// Len returns the number of distinct keys.
func (t *BTree[K, V]) Len() int {
	return t.size
}

// Height returns the number of levels, 1 for a lone leaf.
func (t *BTree[K, V]) Height() int {
	h := 1
	for n := t.root; !n.leaf; n = n.children[0] {
		h++
	}
	return h
}

// Stats returns a snapshot of the counters.
func (t *BTree[K, V]) Stats() Stats {
	s := t.stats
	s.Size = t.size
	s.Height = t.Height()
	return s
}

// search returns the first index i with keys[i] >= k and whether it is an
// exact match.
func (t *BTree[K, V]) search(keys []K, k K) (int, bool) {
	return slices.BinarySearchFunc(keys, k, t.cmp)
}

func (t *BTree[K, V]) full(n *node[K, V]) bool {
	return len(n.keys) >= t.order-1
}

// Search returns the value stored under k.
func (t *BTree[K, V]) Search(k K) (V, bool) {
	t.stats.Searches++
	if v, ok := t.cache.Get(k); ok {
		t.stats.CacheHits++
		return v, true
	}

	n := t.root
	for !n.leaf {
		i, _ := t.search(n.keys, k)
		n = n.children[i]
	}
	i, found := t.search(n.keys, k)
	if !found {
		var zero V
		return zero, false
	}
	v := n.values[i]
	t.cache.Put(k, v)
	return v, true
}

// Insert stores v under k, replacing any previous value.
func (t *BTree[K, V]) Insert(k K, v V) {
	t.stats.Inserts++
	t.cache.Clear()

	if t.full(t.root) {
		old := t.root
		t.root = &node[K, V]{children: []*node[K, V]{old}}
		t.splitChild(t.root, 0)
	}

	n := t.root
	for !n.leaf {
		i, _ := t.search(n.keys, k)
		if t.full(n.children[i]) {
			t.splitChild(n, i)
			// The new separator is the max of the left half.
			if t.cmp(k, n.keys[i]) > 0 {
				i++
			}
		}
		n = n.children[i]
	}

	i, found := t.search(n.keys, k)
	if found {
		n.values[i] = v
		return
	}
	n.keys = slices.Insert(n.keys, i, k)
	n.values = slices.Insert(n.values, i, v)
	t.size++
}

// splitChild splits the full child parent.children[i] into two nodes and
// records the separator in parent.keys[i].
func (t *BTree[K, V]) splitChild(parent *node[K, V], i int) {
	child := parent.children[i]
	mid := len(child.keys) / 2
	right := &node[K, V]{leaf: child.leaf}
	var sep K

	if child.leaf {
		right.keys = slices.Clone(child.keys[mid:])
		right.values = slices.Clone(child.values[mid:])
		child.keys = slices.Clip(child.keys[:mid])
		child.values = slices.Clip(child.values[:mid])
		sep = child.keys[mid-1]
	} else {
		sep = child.keys[mid]
		right.keys = slices.Clone(child.keys[mid+1:])
		right.children = slices.Clone(child.children[mid+1:])
		child.keys = slices.Clip(child.keys[:mid])
		child.children = slices.Clip(child.children[:mid+1])
	}

	parent.keys = slices.Insert(parent.keys, i, sep)
	parent.children = slices.Insert(parent.children, i+1, right)
}

// Range returns every entry with lo <= key <= hi in ascending order.
func (t *BTree[K, V]) Range(lo, hi K) []Entry[K, V] {
	var out []Entry[K, V]
	if t.cmp(lo, hi) > 0 {
		return out
	}
	t.rangeNode(t.root, lo, hi, &out)
	return out
}

func (t *BTree[K, V]) rangeNode(n *node[K, V], lo, hi K, out *[]Entry[K, V]) {
	if n.leaf {
		start, _ := t.search(n.keys, lo)
		for i := start; i < len(n.keys) && t.cmp(n.keys[i], hi) <= 0; i++ {
			*out = append(*out, Entry[K, V]{Key: n.keys[i], Value: n.values[i]})
		}
		return
	}
	for i, child := range n.children {
		// Child i covers (keys[i-1], keys[i]].
		if i > 0 && t.cmp(n.keys[i-1], hi) >= 0 {
			break
		}
		if i < len(n.keys) && t.cmp(n.keys[i], lo) < 0 {
			continue
		}
		t.rangeNode(child, lo, hi, out)
	}
}

// Ascend calls fn for every entry in key order until fn returns false.
func (t *BTree[K, V]) Ascend(fn func(k K, v V) bool) {
	t.ascend(t.root, fn)
}

func (t *BTree[K, V]) ascend(n *node[K, V], fn func(k K, v V) bool) bool {
	if n.leaf {
		for i, k := range n.keys {
			if !fn(k, n.values[i]) {
				return false
			}
		}
		return true
	}
	for _, c := range n.children {
		if !t.ascend(c, fn) {
			return false
		}
	}
	return true
}

// BulkLoad replaces the tree contents with entries. Entries are sorted
// once; when a key repeats the last occurrence wins.
func (t *BTree[K, V]) BulkLoad(entries []Entry[K, V]) {
	t.cache.Clear()
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry[K, V]) int { return t.cmp(a.Key, b.Key) })

	keys := make([]K, 0, len(sorted))
	values := make([]V, 0, len(sorted))
	for _, e := range sorted {
		if n := len(keys); n > 0 && t.cmp(keys[n-1], e.Key) == 0 {
			values[n-1] = e.Value
			continue
		}
		keys = append(keys, e.Key)
		values = append(values, e.Value)
	}
	t.size = len(keys)

	capacity := t.order - 1
	if len(keys) <= capacity {
		t.root = &node[K, V]{leaf: true, keys: keys, values: values}
		return
	}

	level := make([]*node[K, V], 0, len(keys)/capacity+1)
	maxKeys := make([]K, 0, cap(level))
	for _, r := range chunks(len(keys), capacity) {
		level = append(level, &node[K, V]{
			leaf:   true,
			keys:   slices.Clone(keys[r[0]:r[1]]),
			values: slices.Clone(values[r[0]:r[1]]),
		})
		maxKeys = append(maxKeys, keys[r[1]-1])
	}

	// An internal node holds up to order children.
	for len(level) > 1 {
		var next []*node[K, V]
		var nextMax []K
		for _, r := range chunks(len(level), t.order) {
			n := &node[K, V]{
				children: slices.Clone(level[r[0]:r[1]]),
				keys:     slices.Clone(maxKeys[r[0] : r[1]-1]),
			}
			next = append(next, n)
			nextMax = append(nextMax, maxKeys[r[1]-1])
		}
		level, maxKeys = next, nextMax
	}
	t.root = level[0]
}

// chunks splits n items into the fewest groups of at most size items,
// as evenly as possible. Each group holds at least two items when n > size.
func chunks(n, size int) [][2]int {
	count := (n + size - 1) / size
	base, extra := n/count, n%count
	out := make([][2]int, 0, count)
	start := 0
	for i := 0; i < count; i++ {
		end := start + base
		if i < extra {
			end++
		}
		out = append(out, [2]int{start, end})
		start = end
	}
	return out
}
