package table

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewGrid(t *testing.T) {
	t.Parallel()
	g, err := GridFromMap(map[string]any{
		"emptyMessage": "No data",
		"view":         "foo",
	})
	if err != nil {
		t.Fatalf("GridFromMap() error = %v", err)
	}
	if g.EmptyMessage() != "No data" {
		t.Errorf("EmptyMessage() = %q", g.EmptyMessage())
	}
	if g.ViewName() != "foo" {
		t.Errorf("ViewName() = %q", g.ViewName())
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "grid.yaml")
	if err := os.WriteFile(path, []byte("emptyMessage: Nothing here\nview: users.table\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != (Config{EmptyMessage: "Nothing here", View: "users.table"}) {
		t.Errorf("LoadConfig() = %+v", cfg)
	}
}

type page struct {
	items []any
}

func (p page) Items() []any { return p.items }

func TestWith(t *testing.T) {
	t.Parallel()
	fluent := map[string]any{"id": 1}

	tests := []struct {
		name     string
		model    any
		paginate bool
		wantRows []any
	}{
		{"slice of any", []any{fluent}, false, []any{fluent}},
		{"typed slice", []string{"a", "b"}, false, []any{"a", "b"}},
		{"array", [2]int{1, 2}, false, []any{1, 2}},
		{"single value", fluent, false, []any{fluent}},
		{"nil", nil, false, nil},
		{"paginated", page{items: []any{"p1", "p2"}}, true, []any{"p1", "p2"}},
		{"paginator without pagination", page{items: []any{"p1"}}, false, []any{page{items: []any{"p1"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrid(Config{})
			g.With(tt.model, tt.paginate)

			if !reflect.DeepEqual(g.Rows(), tt.wantRows) {
				t.Errorf("Rows() = %#v, want %#v", g.Rows(), tt.wantRows)
			}
			if !reflect.DeepEqual(g.Model(), tt.model) {
				t.Errorf("Model() = %#v", g.Model())
			}
			if g.Paginate() != tt.paginate {
				t.Errorf("Paginate() = %v", g.Paginate())
			}
			isset, err := g.Isset("model")
			if err != nil {
				t.Fatal(err)
			}
			if isset != (tt.model != nil) {
				t.Errorf("Isset(model) = %v", isset)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	t.Parallel()
	g := NewGrid(Config{})

	tests := map[string]string{
		"horizontal": "orchestra::support.table.horizontal",
		"vertical":   "orchestra::support.table.vertical",
		"foo":        "foo",
	}
	for layout, want := range tests {
		if got := g.Layout(layout).ViewName(); got != want {
			t.Errorf("Layout(%q) view = %q, want %q", layout, got, want)
		}
	}
}

func TestOf(t *testing.T) {
	t.Parallel()
	g := NewGrid(Config{})

	g.Column("id", func(c *Column) {
		c.Value = Static("Foobar")
	})
	g.ColumnFunc(func(c *Column) {
		c.ID = "foo1"
		c.Label = "Foo1"
		c.Value = Static("Foo1 value")
	})
	g.LabelledColumn("Foo2", "foo2").Value = Static("Foo2 value")

	if err := g.Set("markup", map[string]string{"class": "foo"}); err != nil {
		t.Fatal(err)
	}

	c, err := g.Of("id")
	if err != nil {
		t.Fatalf("Of() error = %v", err)
	}
	if c.ID != "id" || c.Label != "Id" || c.Resolve(nil) != "Foobar" {
		t.Errorf("Of(id) = %+v", c)
	}

	markup, err := g.Get("markup")
	if err != nil {
		t.Fatal(err)
	}
	if !maps.Equal(markup.(Markup), Markup{"class": "foo"}) {
		t.Errorf("markup = %v", markup)
	}

	want := []struct{ id, label, value string }{
		{"id", "Id", "Foobar"},
		{"foo1", "Foo1", "Foo1 value"},
		{"foo2", "Foo2", "Foo2 value"},
	}
	cols := g.Columns()
	if len(cols) != len(want) {
		t.Fatalf("Columns() has %d entries, want %d", len(cols), len(want))
	}
	for i, w := range want {
		c := cols[i]
		if c.ID != w.id || c.Label != w.label || c.Resolve(nil) != w.value {
			t.Errorf("column %d = {%s %s %v}, want %v", i, c.ID, c.Label, c.Resolve(nil), w)
		}
		if len(c.LabelMarkup) != 0 || len(c.CellMarkup(nil)) != 0 {
			t.Errorf("column %d markup should default to empty", i)
		}
	}

	same, _ := g.Of("foo2")
	if same != cols[2] {
		t.Error("Of() should return the registered column")
	}
}

func TestOfConfigures(t *testing.T) {
	t.Parallel()
	g := NewGrid(Config{})
	g.Column("email")

	c, err := g.Of("email", func(c *Column) { c.Label = "E-mail" })
	if err != nil {
		t.Fatal(err)
	}
	if c.Label != "E-mail" {
		t.Errorf("Label = %q", c.Label)
	}
}

func TestOfUnknownColumn(t *testing.T) {
	t.Parallel()
	g := NewGrid(Config{})
	if _, err := g.Of("id"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Of() error = %v, want ErrInvalidArgument", err)
	}
}

func TestColumnFuncDefaults(t *testing.T) {
	t.Parallel()
	g := NewGrid(Config{})
	c := g.ColumnFunc(func(c *Column) { c.ID = "created_at" })
	if c.Label != "Created At" {
		t.Errorf("Label = %q, want humanized id", c.Label)
	}
}

func TestMarkup(t *testing.T) {
	t.Parallel()
	g := NewGrid(Config{})

	if _, err := g.Call("markup", map[string]string{"class": "foo"}); err != nil {
		t.Fatal(err)
	}
	if !maps.Equal(g.Markup(), Markup{"class": "foo"}) {
		t.Errorf("Markup() = %v", g.Markup())
	}

	got, err := g.Call("markup", "id", "foobar")
	if err != nil {
		t.Fatal(err)
	}
	want := Markup{"id": "foobar", "class": "foo"}
	if !maps.Equal(got.(Markup), want) || !maps.Equal(g.Markup(), want) {
		t.Errorf("Markup() = %v, want %v", g.Markup(), want)
	}

	if got, _ := g.Call("markup"); !maps.Equal(got.(Markup), want) {
		t.Errorf("Call(markup) = %v", got)
	}

	// The accessor returns a copy.
	g.Markup()["class"] = "changed"
	if g.Markup()["class"] != "foo" {
		t.Error("Markup() exposed internal state")
	}

	g.SetMarkup(Markup{"style": "x"})
	if !maps.Equal(g.Markup(), Markup{"style": "x"}) {
		t.Errorf("SetMarkup() should replace, got %v", g.Markup())
	}

	if err := g.Set("markup", map[string]any{"colspan": 2}); err != nil {
		t.Fatal(err)
	}
	if g.Markup()["colspan"] != "2" {
		t.Errorf("Markup() = %v", g.Markup())
	}
}

func TestDynamicAccessErrors(t *testing.T) {
	t.Parallel()
	g := NewGrid(Config{})

	tests := []struct {
		name string
		call func() error
	}{
		{"call unknown method", func() error {
			_, err := g.Call("invalid_method")
			return err
		}},
		{"get unknown property", func() error {
			_, err := g.Get("invalid_property")
			return err
		}},
		{"set unknown property", func() error {
			return g.Set("invalid_property", map[string]string{"foo": "bar"})
		}},
		{"set model", func() error {
			return g.Set("model", []any{})
		}},
		{"set markup to a string", func() error {
			return g.Set("markup", "foo")
		}},
		{"isset unknown property", func() error {
			_, err := g.Isset("invalid_property")
			return err
		}},
		{"call markup with a non string pair", func() error {
			_, err := g.Call("markup", "id", 1)
			return err
		}},
		{"call markup with too many arguments", func() error {
			_, err := g.Call("markup", "a", "b", "c")
			return err
		}},
	}

	for _, tt := range tests {
		if err := tt.call(); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: error = %v, want ErrInvalidArgument", tt.name, err)
		}
	}

	if isset, err := g.Isset("markup"); err != nil || !isset {
		t.Errorf("Isset(markup) = %v, %v", isset, err)
	}
}
