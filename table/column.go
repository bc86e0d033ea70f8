package table

import (
	"maps"
	"reflect"
	"strings"

	"github.com/orchestral/support/str"
)

// Markup holds HTML attributes such as {"class": "table"}.
type Markup map[string]string

// Column describes one grid column.
type Column struct {
	ID    string
	Label string

	// Value resolves the cell content for a row. It defaults to Field(ID).
	Value Value

	LabelMarkup Markup

	// CellMarkup returns the attributes of the cell rendered for row.
	CellMarkup func(row any) Markup
}

func newColumn(label, id string) *Column {
	return &Column{
		ID:          id,
		Label:       label,
		LabelMarkup: Markup{},
	}
}

// finish fills the defaults left empty by a configurator.
func (c *Column) finish() {
	if c.Label == "" {
		c.Label = str.Humanize(c.ID)
	}
	if c.Value == nil {
		c.Value = Field(c.ID)
	}
	if c.LabelMarkup == nil {
		c.LabelMarkup = Markup{}
	}
	if c.CellMarkup == nil {
		c.CellMarkup = func(any) Markup { return Markup{} }
	}
}

// Resolve returns the cell value of c for row.
func (c *Column) Resolve(row any) any {
	if c.Value == nil {
		return Field(c.ID).Resolve(row)
	}
	return c.Value.Resolve(row)
}

// Value resolves a cell from a row. It is one of Static, Field or a
// ResolverFunc.
type Value interface {
	Resolve(row any) any
	value()
}

type staticValue struct{ v any }

func (s staticValue) Resolve(any) any { return s.v }
func (staticValue) value()            {}

// Static renders v in every row.
func Static(v any) Value {
	return staticValue{v}
}

type fieldValue string

// Field reads the attribute name from the row. Rows may be maps keyed by
// string, values implementing Getter, or structs whose exported field
// matches name in studly case ("created_at" reads CreatedAt).
func Field(name string) Value {
	return fieldValue(name)
}

func (f fieldValue) value() {}

func (f fieldValue) Resolve(row any) any {
	return lookup(row, string(f))
}

// ResolverFunc computes a cell from the whole row.
type ResolverFunc func(row any) any

func (f ResolverFunc) Resolve(row any) any { return f(row) }
func (ResolverFunc) value()                {}

// Getter is implemented by rows that expose attributes by key.
type Getter interface {
	Get(key string) any
}

func lookup(row any, name string) any {
	switch r := row.(type) {
	case nil:
		return nil
	case Getter:
		return r.Get(name)
	case map[string]any:
		return r[name]
	case map[string]string:
		if v, ok := r[name]; ok {
			return v
		}
		return nil
	}

	v := reflect.ValueOf(row)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil
		}
		e := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !e.IsValid() {
			return nil
		}
		return e.Interface()
	case reflect.Struct:
		t := v.Type()
		studly := str.Studly(name)
		for i := range t.NumField() {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			if sf.Name == studly || strings.EqualFold(sf.Name, name) {
				return v.Field(i).Interface()
			}
		}
	}
	return nil
}

func cloneMarkup(m Markup) Markup {
	if m == nil {
		return Markup{}
	}
	return maps.Clone(m)
}
