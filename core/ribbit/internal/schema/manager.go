package schema

import (
	"slices"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
)

// Index describes a secondary index. Indexes are rebuilt in memory when a
// database is opened; only their definition is persisted.
type Index struct {
	Name      string
	Table     string
	Columns   []string
	Unique    bool
	CreatedAt string
}

// View is a named SELECT stored as canonical SQL.
type View struct {
	Name      string
	SQL       string
	CreatedAt string
}

// Manager is the in-memory catalog. Names are matched without regard to
// case. It is not safe for concurrent use.
type Manager struct {
	tables  map[string]*Table
	indexes map[string]*Index
	views   map[string]*View
}

// NewManager returns an empty catalog.
func NewManager() *Manager {
	return &Manager{
		tables:  make(map[string]*Table),
		indexes: make(map[string]*Index),
		views:   make(map[string]*View),
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// CreateTable registers t. It fails when a table or view of the same name
// exists.
func (m *Manager) CreateTable(t *Table) error {
	if m.TableExists(t.Name) {
		return errors.NewTableExists(t.Name)
	}
	if _, ok := m.views[key(t.Name)]; ok {
		return errors.NewSchema("view", t.Name, "already exists")
	}
	if t.columnMap == nil {
		t.reindex()
	}
	m.tables[key(t.Name)] = t
	return nil
}

// Table returns the named table.
func (m *Manager) Table(name string) (*Table, bool) {
	t, ok := m.tables[key(name)]
	return t, ok
}

// TableExists reports whether a table is registered.
func (m *Manager) TableExists(name string) bool {
	_, ok := m.tables[key(name)]
	return ok
}

// DropTable removes a table and returns the indexes dropped with it.
func (m *Manager) DropTable(name string) ([]*Index, error) {
	if !m.TableExists(name) {
		return nil, errors.NewTableNotFound(name)
	}
	dropped := m.Indexes(name)
	for _, idx := range dropped {
		delete(m.indexes, key(idx.Name))
	}
	delete(m.tables, key(name))
	return dropped, nil
}

// PrimaryKeyIndex names the index created for the primary key of table.
func PrimaryKeyIndex(table string) string {
	return table + "_pk"
}

// RenameTable moves a table and its indexes to a new name. The primary key
// index follows the table name.
func (m *Manager) RenameTable(from, to string) (*Table, error) {
	t, ok := m.Table(from)
	if !ok {
		return nil, errors.NewTableNotFound(from)
	}
	if key(from) != key(to) && (m.TableExists(to) || m.views[key(to)] != nil) {
		return nil, errors.NewTableExists(to)
	}
	pk, hasPK := m.indexes[key(PrimaryKeyIndex(from))]
	hasPK = hasPK && key(pk.Table) == key(from)
	if hasPK && key(from) != key(to) {
		if _, taken := m.indexes[key(PrimaryKeyIndex(to))]; taken {
			return nil, errors.NewSchema("index", PrimaryKeyIndex(to), "already exists")
		}
	}
	for _, idx := range m.Indexes(from) {
		idx.Table = to
	}
	if hasPK {
		delete(m.indexes, key(pk.Name))
		pk.Name = PrimaryKeyIndex(to)
		m.indexes[key(pk.Name)] = pk
	}
	delete(m.tables, key(from))
	t.Name = to
	m.tables[key(to)] = t
	return t, nil
}

// Tables returns every table sorted by name.
func (m *Manager) Tables() []*Table {
	out := make([]*Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Table) int { return strings.Compare(key(a.Name), key(b.Name)) })
	return out
}

// UserTables returns tables other than the system tables, sorted by name.
func (m *Manager) UserTables() []*Table {
	return slices.DeleteFunc(m.Tables(), func(t *Table) bool { return IsSystemTable(t.Name) })
}

// CreateIndex registers idx after checking its table and columns.
func (m *Manager) CreateIndex(idx *Index) error {
	if _, ok := m.indexes[key(idx.Name)]; ok {
		return errors.NewSchema("index", idx.Name, "already exists")
	}
	t, ok := m.Table(idx.Table)
	if !ok {
		return errors.NewTableNotFound(idx.Table)
	}
	if len(idx.Columns) == 0 {
		return errors.NewSchema("index", idx.Name, "has no columns")
	}
	for i, c := range idx.Columns {
		col, ok := t.Column(c)
		if !ok {
			return errors.NewColumnNotFound(t.Name, c)
		}
		idx.Columns[i] = col.Name
	}
	idx.Table = t.Name
	m.indexes[key(idx.Name)] = idx
	return nil
}

// Index returns the named index.
func (m *Manager) Index(name string) (*Index, bool) {
	idx, ok := m.indexes[key(name)]
	return idx, ok
}

// DropIndex removes an index.
func (m *Manager) DropIndex(name string) (*Index, error) {
	idx, ok := m.indexes[key(name)]
	if !ok {
		return nil, errors.NewSchema("index", name, "does not exist")
	}
	delete(m.indexes, key(name))
	return idx, nil
}

// Indexes returns the indexes on table, or all indexes when table is
// empty, sorted by name.
func (m *Manager) Indexes(table string) []*Index {
	var out []*Index
	for _, idx := range m.indexes {
		if table == "" || key(idx.Table) == key(table) {
			out = append(out, idx)
		}
	}
	slices.SortFunc(out, func(a, b *Index) int { return strings.Compare(key(a.Name), key(b.Name)) })
	return out
}

// CreateView registers v. Views share the table namespace.
func (m *Manager) CreateView(v *View) error {
	if _, ok := m.views[key(v.Name)]; ok {
		return errors.NewSchema("view", v.Name, "already exists")
	}
	if m.TableExists(v.Name) {
		return errors.NewTableExists(v.Name)
	}
	m.views[key(v.Name)] = v
	return nil
}

// View returns the named view.
func (m *Manager) View(name string) (*View, bool) {
	v, ok := m.views[key(name)]
	return v, ok
}

// DropView removes a view.
func (m *Manager) DropView(name string) (*View, error) {
	v, ok := m.views[key(name)]
	if !ok {
		return nil, errors.NewSchema("view", name, "does not exist")
	}
	delete(m.views, key(name))
	return v, nil
}

// Views returns every view sorted by name.
func (m *Manager) Views() []*View {
	out := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *View) int { return strings.Compare(key(a.Name), key(b.Name)) })
	return out
}
