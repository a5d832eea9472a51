package tracking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditable struct {
	CreatedAt time.Time `db:"created_at"`
}

type customer struct {
	auditable
	ID       int64           `db:"id" audit:"key,generated"`
	Name     string          `db:"name"`
	Balance  decimal.Decimal `db:"balance"`
	Password string          `db:"password" audit:"-"`
	note     string
}

type orderLine struct {
	OrderID int64 `db:"order_id" audit:"key"`
	LineNo  int   `db:"line_no" audit:"key"`
	Qty     int   `db:"qty"`
}

func (orderLine) TableName() string { return "order_lines_v2" }

type keyless struct {
	Name string `db:"name"`
}

func TestSchemaOf(t *testing.T) {
	s, err := SchemaOf(&customer{})
	require.NoError(t, err)

	assert.Equal(t, "customers", s.Table)
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		cols = append(cols, f.Column)
	}
	assert.Equal(t, []string{"created_at", "id", "name", "balance", "password"}, cols)

	keys := s.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "id", keys[0].Column)
	assert.True(t, keys[0].Generated)

	pw, ok := s.Field("password")
	require.True(t, ok)
	assert.False(t, pw.Audited)

	again, err := SchemaOf(customer{})
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestSchemaOf_TableNamerAndCompositeKey(t *testing.T) {
	s, err := SchemaOf(&orderLine{})
	require.NoError(t, err)
	assert.Equal(t, "order_lines_v2", s.Table)
	require.Len(t, s.Keys(), 2)
	assert.Equal(t, "order_id", s.Keys()[0].Column)
	assert.Equal(t, "line_no", s.Keys()[1].Column)
}

func TestSchemaOf_Invalid(t *testing.T) {
	_, err := SchemaOf(&keyless{})
	assert.Error(t, err)

	_, err = SchemaOf(42)
	assert.Error(t, err)

	_, err = SchemaOf(nil)
	assert.Error(t, err)
}

func TestSet_Added(t *testing.T) {
	set := NewSet()
	c := &customer{Name: "Alice"}
	require.NoError(t, set.Add(c))

	entries := set.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, Added, e.State())
	assert.Equal(t, "customers", e.Table())
	assert.Same(t, c, e.Entity())

	id, ok := e.Property("id")
	require.True(t, ok)
	assert.True(t, id.Key)
	assert.True(t, id.Temporary)

	_, ok = e.Property("password")
	assert.False(t, ok, "audit:\"-\" fields are not reported")

	c.ID = 7
	id, _ = e.Property("id")
	assert.False(t, id.Temporary)
	assert.Equal(t, int64(7), id.Current)
}

func TestSet_ModifiedDerivedFromSnapshot(t *testing.T) {
	set := NewSet()
	c := &customer{ID: 1, Name: "Alice", Balance: decimal.RequireFromString("10.5")}
	require.NoError(t, set.Attach(c))

	e, ok := set.Entry(c)
	require.True(t, ok)
	assert.Equal(t, Unchanged, e.State())

	c.Balance = decimal.RequireFromString("10.50")
	assert.Equal(t, Unchanged, e.State(), "numerically equal decimals are not a change")

	c.Name = "Bob"
	assert.Equal(t, Modified, e.State())
	assert.Equal(t, []string{"name"}, e.ChangedColumns())

	name, _ := e.Property("name")
	assert.Equal(t, "Alice", name.Original)
	assert.Equal(t, "Bob", name.Current)
	assert.False(t, name.Temporary)

	c.Name = "Alice"
	assert.Equal(t, Unchanged, e.State())
}

func TestSet_RemoveAndDetach(t *testing.T) {
	set := NewSet()
	loaded := &customer{ID: 1, Name: "Alice"}
	fresh := &customer{Name: "Bob"}
	other := &customer{ID: 2, Name: "Carol"}
	require.NoError(t, set.Attach(loaded))
	require.NoError(t, set.Add(fresh))
	require.NoError(t, set.Attach(other))

	require.NoError(t, set.Remove(loaded))
	require.NoError(t, set.Remove(fresh))
	require.NoError(t, set.Detach(other))

	states := []State{}
	for _, e := range set.Entries() {
		states = append(states, e.State())
	}
	assert.Equal(t, []State{Deleted, Detached, Detached}, states)

	set.AcceptChanges()
	assert.Empty(t, set.Entries())

	assert.Error(t, set.Remove(&customer{}))
}

func TestSet_AcceptChanges(t *testing.T) {
	set := NewSet()
	c := &customer{Name: "Alice"}
	require.NoError(t, set.Add(c))
	c.ID = 10

	set.AcceptChanges()
	e, ok := set.Entry(c)
	require.True(t, ok)
	assert.Equal(t, Unchanged, e.State())

	c.Name = "Alicia"
	assert.Equal(t, Modified, e.State())
	id, _ := e.Property("id")
	assert.Equal(t, int64(10), id.Original)
}

func TestSet_TrackRejectsNonPointers(t *testing.T) {
	set := NewSet()
	assert.Error(t, set.Add(customer{}))
	assert.Error(t, set.Add((*customer)(nil)))
}

func TestValuesEqual(t *testing.T) {
	now := time.Now()
	var nilPtr *string
	s1, s2 := "x", "x"

	assert.True(t, ValuesEqual(nil, nil))
	assert.True(t, ValuesEqual(nilPtr, nil))
	assert.True(t, ValuesEqual(&s1, &s2))
	assert.True(t, ValuesEqual(now, now.In(time.UTC)))
	assert.True(t, ValuesEqual([]int{1, 2}, []int{1, 2}))
	assert.False(t, ValuesEqual(1, int64(1)))
	assert.False(t, ValuesEqual(&s1, nil))
	assert.False(t, ValuesEqual("a", "b"))
}
