// Package table builds data grids: an ordered set of columns, the rows to
// show and the attributes of the rendered table. A Grid is turned into a
// read-only View and handed to a Renderer.
package table

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/orchestral/support/internal/config"
	"github.com/orchestral/support/str"
)

// ErrInvalidArgument is returned for unknown columns, properties and
// methods, and for values of the wrong type.
var ErrInvalidArgument = errors.New("table: invalid argument")

// Config is the initial grid configuration.
type Config struct {
	EmptyMessage string `mapstructure:"emptyMessage" yaml:"emptyMessage"`
	View         string `mapstructure:"view" yaml:"view"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Paginator is implemented by models that hold a single page of a larger
// result set.
type Paginator interface {
	Items() []any
}

// Grid accumulates columns and rows.
type Grid struct {
	emptyMessage string
	view         string

	columns []*Column
	markup  Markup

	model    any
	rows     []any
	paginate bool
}

// NewGrid creates an empty grid.
func NewGrid(cfg Config) *Grid {
	return &Grid{
		emptyMessage: cfg.EmptyMessage,
		view:         cfg.View,
		markup:       Markup{},
	}
}

// GridFromMap creates a grid from a loosely typed configuration map with
// the keys "emptyMessage" and "view".
func GridFromMap(m map[string]any) (*Grid, error) {
	var cfg Config
	if err := config.Decode(m, &cfg); err != nil {
		return nil, err
	}
	return NewGrid(cfg), nil
}

// EmptyMessage returns the text shown when the grid has no rows.
func (g *Grid) EmptyMessage() string { return g.emptyMessage }

// ViewName returns the view the grid renders with.
func (g *Grid) ViewName() string { return g.view }

// Column registers a column labelled with the humanized id.
func (g *Grid) Column(id string, configure ...func(*Column)) *Column {
	return g.add(newColumn(str.Humanize(id), id), configure)
}

// LabelledColumn registers a column with an explicit label.
func (g *Grid) LabelledColumn(label, id string, configure ...func(*Column)) *Column {
	return g.add(newColumn(label, id), configure)
}

// ColumnFunc registers a column described entirely by configure, which is
// expected to set at least the id.
func (g *Grid) ColumnFunc(configure func(*Column)) *Column {
	return g.add(newColumn("", ""), []func(*Column){configure})
}

func (g *Grid) add(c *Column, configure []func(*Column)) *Column {
	for _, fn := range configure {
		if fn != nil {
			fn(c)
		}
	}
	c.finish()
	g.columns = append(g.columns, c)
	return c
}

// Of returns the first column registered as id after applying configure
// to it.
func (g *Grid) Of(id string, configure ...func(*Column)) (*Column, error) {
	for _, c := range g.columns {
		if c.ID != id {
			continue
		}
		for _, fn := range configure {
			if fn != nil {
				fn(c)
			}
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: column [%s] is not available", ErrInvalidArgument, id)
}

// Columns returns the columns in registration order.
func (g *Grid) Columns() []*Column {
	return append([]*Column(nil), g.columns...)
}

// With sets the data source. When paginate is set and model implements
// Paginator, the current page's items become the rows; otherwise a slice
// or array model is used row by row and any other value is a single row.
func (g *Grid) With(model any, paginate bool) *Grid {
	g.model = model
	g.paginate = paginate
	g.rows = rowsOf(model, paginate)
	return g
}

func rowsOf(model any, paginate bool) []any {
	if model == nil {
		return nil
	}
	if p, ok := model.(Paginator); ok && paginate {
		return p.Items()
	}
	if rows, ok := model.([]any); ok {
		return rows
	}

	v := reflect.ValueOf(model)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		rows := make([]any, v.Len())
		for i := range rows {
			rows[i] = v.Index(i).Interface()
		}
		return rows
	}
	return []any{model}
}

// Model returns the value passed to With.
func (g *Grid) Model() any { return g.model }

// Rows returns the rows taken from the model.
func (g *Grid) Rows() []any { return g.rows }

// Paginate returns the pagination flag passed to With.
func (g *Grid) Paginate() bool { return g.paginate }

// Layout selects the view. "horizontal" and "vertical" name the bundled
// layouts; any other name is used as is.
func (g *Grid) Layout(name string) *Grid {
	switch name {
	case "horizontal", "vertical":
		g.view = "orchestra::support.table." + name
	default:
		g.view = name
	}
	return g
}

// Markup returns a copy of the table attributes.
func (g *Grid) Markup() Markup {
	return cloneMarkup(g.markup)
}

// SetMarkup replaces the table attributes.
func (g *Grid) SetMarkup(m Markup) *Grid {
	g.markup = cloneMarkup(m)
	return g
}

// MarkupAttr sets a single table attribute.
func (g *Grid) MarkupAttr(key, value string) *Grid {
	if g.markup == nil {
		g.markup = Markup{}
	}
	g.markup[key] = value
	return g
}

// Get reads the dynamic property "markup" or "model".
func (g *Grid) Get(name string) (any, error) {
	switch name {
	case "markup":
		return g.Markup(), nil
	case "model":
		return g.model, nil
	}
	return nil, fmt.Errorf("%w: unable to get property [%s]", ErrInvalidArgument, name)
}

// Set writes the dynamic property "markup", which must be a map.
func (g *Grid) Set(name string, value any) error {
	if name != "markup" {
		return fmt.Errorf("%w: unable to set property [%s]", ErrInvalidArgument, name)
	}
	m, err := toMarkup(value)
	if err != nil {
		return err
	}
	g.SetMarkup(m)
	return nil
}

// Isset reports whether the dynamic property "markup" or "model" holds a
// value.
func (g *Grid) Isset(name string) (bool, error) {
	switch name {
	case "markup":
		return g.markup != nil, nil
	case "model":
		return g.model != nil, nil
	}
	return false, fmt.Errorf("%w: unable to check property [%s]", ErrInvalidArgument, name)
}

// Call invokes the dynamic method "markup": without arguments it returns
// the attributes, with a map it replaces them and with a key and a value
// it sets one attribute.
func (g *Grid) Call(name string, args ...any) (any, error) {
	if name != "markup" {
		return nil, fmt.Errorf("%w: unable to call method [%s]", ErrInvalidArgument, name)
	}

	switch len(args) {
	case 0:
		return g.Markup(), nil
	case 1:
		m, err := toMarkup(args[0])
		if err != nil {
			return nil, err
		}
		return g.SetMarkup(m).Markup(), nil
	case 2:
		key, ok1 := args[0].(string)
		value, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: markup attribute must be a string pair", ErrInvalidArgument)
		}
		return g.MarkupAttr(key, value).Markup(), nil
	}
	return nil, fmt.Errorf("%w: markup takes at most 2 arguments, got %d", ErrInvalidArgument, len(args))
}

func toMarkup(value any) (Markup, error) {
	switch m := value.(type) {
	case Markup:
		return m, nil
	case map[string]string:
		return Markup(m), nil
	case map[string]any:
		out := make(Markup, len(m))
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: markup must be a map, got %T", ErrInvalidArgument, value)
}
