package report

import (
	"cmp"
	"errors"
	"io"
	"maps"
	"slices"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/repop/repop/pkg/engine"
)

// DefaultPrecision is the number of decimals shown for quantities.
const DefaultPrecision = 2

// ErrNotSolved is returned when a report is requested for an unsolved model.
var ErrNotSolved = errors.New("model has not been solved")

// Options tunes console output.
type Options struct {
	// Precision is the number of decimals displayed. Zero selects
	// DefaultPrecision and engine.WholeUnits shows integers. Values that
	// round to zero are shown as zero.
	Precision int

	// Currency prefixes money columns. Empty selects "$".
	Currency string
}

// Summary holds the headline economics of a solved model.
type Summary struct {
	Sales         float64 `json:"sales"`
	OperatingCost float64 `json:"operating_cost"`
	CrudeCost     float64 `json:"crude_cost"`
	Profit        float64 `json:"profit"`
}

// Summarize computes sales, unit operating cost, crude cost and profit from
// the solved quantities.
func Summarize(m *engine.Model) (Summary, error) {
	if m == nil || !m.Solved() {
		return Summary{}, ErrNotSolved
	}
	ref := m.Refinery
	var s Summary
	for _, b := range ref.Blends {
		s.Sales += b.Price * b.Quantity
	}
	for _, u := range ref.Units {
		s.OperatingCost += u.Cost * u.Quantity
	}
	for _, c := range ref.Crudes {
		s.CrudeCost += c.Cost * c.Quantity
	}
	s.Profit = s.Sales - s.OperatingCost - s.CrudeCost
	return s, nil
}

// Write renders the overview, crude, per-unit and blending tables.
func Write(w io.Writer, m *engine.Model, opts Options) error {
	summary, err := Summarize(m)
	if err != nil {
		return err
	}
	f := newFormatter(opts)
	ref := m.Refinery
	groups := groupByPrefix(append(ref.CrudeNames(), ref.PoolNames()...))

	tables := []*table{metadataTable(ref.Metadata), overviewTable(f, summary), crudeTable(f, ref)}
	tables = append(tables, unitTables(f, m, groups)...)
	tables = append(tables, blendingTable(f, m, groups))

	for _, t := range tables {
		if t == nil {
			continue
		}
		if err := t.render(w); err != nil {
			return err
		}
	}
	return nil
}

type formatter struct {
	precision int
	currency  string
	printer   *message.Printer
}

func newFormatter(opts Options) formatter {
	f := formatter{
		precision: engine.Decimals(opts.Precision, DefaultPrecision),
		currency:  cmp.Or(opts.Currency, "$"),
		printer:   message.NewPrinter(language.English),
	}
	return f
}

func (f formatter) zero(v float64) float64 {
	if engine.Round(v, f.precision) == 0 {
		return 0
	}
	return v
}

func (f formatter) qty(v float64) string {
	return f.printer.Sprintf("%.*f", f.precision, f.zero(v))
}

func (f formatter) money(v float64) string {
	return f.currency + f.printer.Sprintf("%.2f", f.zero(v))
}

func metadataTable(md engine.Metadata) *table {
	fields := [][2]string{
		{"Description", md.Description},
		{"Version", md.Version},
		{"Last updated", md.LastUpdated},
		{"Author", md.Author},
	}
	t := newTable("Plant", "Field", "Value")
	for _, kv := range fields {
		if kv[1] != "" {
			t.add(kv[0], kv[1])
		}
	}
	if len(t.rows) == 0 {
		return nil
	}
	return t
}

func overviewTable(f formatter, s Summary) *table {
	t := newTable("Overview", "Metric", "Value")
	t.add("Sales", f.money(s.Sales))
	t.add("Op cost", f.money(s.OperatingCost))
	t.add("In cost", f.money(s.CrudeCost))
	t.section()
	t.add("Profit", f.money(s.Profit))
	return t
}

func crudeTable(f formatter, ref *engine.Refinery) *table {
	names := ref.CrudeNames()
	t := newTable("Crudes", append([]string{"Metric"}, names...)...)
	total := []string{"Total"}
	cost := []string{"Cost"}
	for _, name := range names {
		c := ref.Crudes[name]
		total = append(total, f.qty(c.Quantity))
		cost = append(cost, f.money(c.Cost*c.Quantity))
	}
	t.add(total...)
	t.add(cost...)
	return t
}

// unitTables renders one yield matrix per unit, ordered by level. Rows are
// output groups, columns are feed groups.
func unitTables(f formatter, m *engine.Model, groups map[string][]string) []*table {
	ref := m.Refinery
	units := slices.SortedFunc(maps.Values(ref.Units), func(a, b *engine.Unit) int {
		return cmp.Or(cmp.Compare(a.Level, b.Level), cmp.Compare(a.Name, b.Name))
	})
	keys := slices.Sorted(maps.Keys(groups))

	var out []*table
	for _, u := range units {
		feedValue := func(feed string) float64 {
			id, ok := u.Feeds[feed]
			if !ok {
				return 0
			}
			return m.Value(id)
		}

		var inGroups, outGroups []string
		outputs := u.OutputsOf()
		for _, g := range keys {
			if slices.ContainsFunc(groups[g], func(n string) bool { _, ok := u.Yields[n]; return ok }) {
				inGroups = append(inGroups, g)
			}
			if slices.ContainsFunc(groups[g], func(n string) bool { return slices.Contains(outputs, n) }) {
				outGroups = append(outGroups, g)
			}
		}

		t := newTable("Unit: "+u.Name, append(append([]string{"Yields"}, inGroups...), "Total")...)
		for _, og := range outGroups {
			row := []string{og}
			sum := 0.0
			for _, ig := range inGroups {
				v := 0.0
				for _, feed := range groups[ig] {
					yields, ok := u.Yields[feed]
					if !ok {
						continue
					}
					for _, pool := range groups[og] {
						v += yields[pool] * feedValue(feed)
					}
				}
				sum += v
				row = append(row, f.qty(v))
			}
			t.add(append(row, f.qty(sum))...)
		}

		t.section()
		totals := []string{"Total"}
		costs := []string{"Cost"}
		var sumIn float64
		for _, ig := range inGroups {
			q := 0.0
			for _, feed := range groups[ig] {
				q += feedValue(feed)
			}
			sumIn += q
			totals = append(totals, f.qty(q))
			costs = append(costs, f.money(u.Cost*q))
		}
		t.add(append(totals, f.qty(sumIn))...)
		t.add(append(costs, f.money(u.Cost*sumIn))...)
		out = append(out, t)
	}
	return out
}

// blendingTable lists, per component group, how much each blend takes.
func blendingTable(f formatter, m *engine.Model, groups map[string][]string) *table {
	ref := m.Refinery
	blends := ref.BlendNames()
	t := newTable("Blending", append([]string{"Pool"}, blends...)...)

	used := make(map[string]bool)
	for _, b := range ref.Blends {
		for _, c := range b.Components {
			used[c] = true
		}
	}

	for _, g := range slices.Sorted(maps.Keys(groups)) {
		if !slices.ContainsFunc(groups[g], func(n string) bool { return used[n] }) {
			continue
		}
		row := []string{g}
		for _, name := range blends {
			b := ref.Blends[name]
			q := 0.0
			for _, n := range groups[g] {
				if id, ok := b.Allocations[n]; ok {
					q += m.Value(id)
				}
			}
			row = append(row, f.qty(q))
		}
		t.add(row...)
	}

	t.section()
	totals := []string{"Total"}
	revenue := []string{"Revenue"}
	for _, name := range blends {
		b := ref.Blends[name]
		totals = append(totals, f.qty(b.Quantity))
		revenue = append(revenue, f.money(b.Price*b.Quantity))
	}
	t.add(totals...)
	t.add(revenue...)
	return t
}

// groupByPrefix groups names by the part before the first dot, so that
// "naphtha.light" and "naphtha.heavy" share the "naphtha" row.
func groupByPrefix(names []string) map[string][]string {
	groups := make(map[string][]string)
	for _, n := range slices.Sorted(slices.Values(names)) {
		g := engine.PoolGroup(n)
		groups[g] = append(groups[g], n)
	}
	return groups
}
