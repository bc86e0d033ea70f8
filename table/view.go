package table

// Header is a rendered column heading.
type Header struct {
	ID     string
	Label  string
	Markup Markup
}

// Cell is a rendered value with its attributes.
type Cell struct {
	Value  any
	Markup Markup
}

// View is the read-only snapshot of a grid handed to a Renderer.
type View struct {
	Headers      []Header
	Rows         [][]Cell
	EmptyMessage string
	Markup       Markup
	Paginate     bool
	Model        any
}

// Empty reports whether there are no rows to show.
func (v View) Empty() bool {
	return len(v.Rows) == 0
}

// Renderer turns a named view and its data into output, typically HTML.
type Renderer interface {
	Render(view string, data any) (string, error)
}

// View resolves every cell of the grid.
func (g *Grid) View() View {
	v := View{
		Headers:      make([]Header, 0, len(g.columns)),
		Rows:         make([][]Cell, 0, len(g.rows)),
		EmptyMessage: g.emptyMessage,
		Markup:       g.Markup(),
		Paginate:     g.paginate,
		Model:        g.model,
	}

	for _, c := range g.columns {
		v.Headers = append(v.Headers, Header{ID: c.ID, Label: c.Label, Markup: cloneMarkup(c.LabelMarkup)})
	}

	for _, row := range g.rows {
		cells := make([]Cell, 0, len(g.columns))
		for _, c := range g.columns {
			var m Markup
			if c.CellMarkup != nil {
				m = c.CellMarkup(row)
			}
			cells = append(cells, Cell{Value: c.Resolve(row), Markup: cloneMarkup(m)})
		}
		v.Rows = append(v.Rows, cells)
	}
	return v
}

// Render hands the view to r under the grid's view name.
func (g *Grid) Render(r Renderer) (string, error) {
	return r.Render(g.view, g.View())
}
