package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Flowchart palette.
const (
	CrudeColor = "#fb7185"
	PoolColor  = "#fde68a"
	BlendColor = "#a5b4fc"
	UnitColor  = "#cbd5e1"
	EdgeColor  = "#1e293b"
)

// NodeStyle holds Graphviz node attributes.
type NodeStyle map[string]string

// DefaultTheme returns the node styles per entity kind.
func DefaultTheme() map[string]NodeStyle {
	base := func(shape, color string) NodeStyle {
		return NodeStyle{
			"shape":     shape,
			"style":     "filled,rounded",
			"fillcolor": color,
			"fontname":  "Helvetica",
			"fontsize":  "10",
		}
	}
	unit := base("box", UnitColor)
	unit["height"] = "1.2"
	return map[string]NodeStyle{
		"crude": base("box", CrudeColor),
		"unit":  unit,
		"pool":  base("ellipse", PoolColor),
		"blend": base("box", BlendColor),
	}
}

// DOTOptions tunes flowchart rendering.
type DOTOptions struct {
	// Theme overrides attributes per entity kind ("crude", "unit", "pool", "blend").
	Theme map[string]NodeStyle

	// Quantities appends solved quantities to labels.
	Quantities bool
}

// PoolGroup returns the display group of a pool: the text before the first dot.
func PoolGroup(name string) string {
	group, _, _ := strings.Cut(name, ".")
	return group
}

type dotNode struct {
	id, label, kind string
}

// ToDOT renders the refinery as a left-to-right Graphviz digraph. Columns
// follow levels: crudes first, then unit level L at column 2L-1 and its pools
// at column 2L, and blends after the deepest unit. Pools sharing a group prefix
// collapse into one node.
func ToDOT(ref *Refinery, opts DOTOptions) string {
	theme := DefaultTheme()
	for kind, override := range opts.Theme {
		merged := NodeStyle{}
		maps.Copy(merged, theme[kind])
		maps.Copy(merged, override)
		theme[kind] = merged
	}

	label := func(name string, qty float64) string {
		if opts.Quantities {
			return fmt.Sprintf("%s\\n%.2f", name, qty)
		}
		return name
	}

	layers := make(map[int][]dotNode)
	for _, name := range ref.CrudeNames() {
		layers[0] = append(layers[0], dotNode{"Crude_" + name, label(name, ref.Crudes[name].Quantity), "crude"})
	}

	depth := 0
	for _, name := range ref.UnitNames() {
		u := ref.Units[name]
		depth = max(depth, u.Level)
		col := 2*u.Level - 1
		layers[col] = append(layers[col], dotNode{"Unit_" + name, label(name, u.Quantity), "unit"})
	}

	groupQty := make(map[string]float64)
	groupLevel := make(map[string]int)
	for _, name := range ref.PoolNames() {
		p := ref.Pools[name]
		g := PoolGroup(name)
		groupQty[g] += p.Quantity
		if l, seen := groupLevel[g]; !seen || p.Level < l {
			groupLevel[g] = p.Level
		}
	}
	for _, g := range slices.Sorted(maps.Keys(groupLevel)) {
		col := 2 * groupLevel[g]
		layers[col] = append(layers[col], dotNode{"Pool_" + g, label(g, groupQty[g]), "pool"})
	}

	for _, name := range ref.BlendNames() {
		col := 2*depth + 2
		layers[col] = append(layers[col], dotNode{"Blend_" + name, label(name, ref.Blends[name].Quantity), "blend"})
	}

	var sb strings.Builder
	sb.WriteString("digraph Refinery {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  splines=ortho;\n")
	sb.WriteString("  fontname=\"Helvetica\";\n")
	sb.WriteString("  fontsize=10;\n\n")

	for _, col := range slices.Sorted(maps.Keys(layers)) {
		sb.WriteString(fmt.Sprintf("  subgraph col_%d {\n", col))
		sb.WriteString("    rank=same;\n")
		for _, n := range layers[col] {
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\"%s];\n", n.id, n.label, formatStyle(theme[n.kind])))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range flowEdges(ref) {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [arrowsize=0.5, color=\"%s\"];\n", e[0], e[1], EdgeColor))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeID(ref *Refinery, name string) string {
	if ref.IsCrude(name) {
		return "Crude_" + name
	}
	return "Pool_" + PoolGroup(name)
}

// flowEdges lists feed, output and blending edges once each, in a stable order.
func flowEdges(ref *Refinery) [][2]string {
	var edges [][2]string
	drawn := make(map[[2]string]struct{})
	add := func(src, dst string) {
		e := [2]string{src, dst}
		if _, ok := drawn[e]; ok {
			return
		}
		drawn[e] = struct{}{}
		edges = append(edges, e)
	}

	for _, name := range ref.UnitNames() {
		for _, feed := range ref.Units[name].FeedsOf() {
			add(nodeID(ref, feed), "Unit_"+name)
		}
	}
	for _, name := range ref.UnitNames() {
		for _, out := range ref.Units[name].OutputsOf() {
			add("Unit_"+name, "Pool_"+PoolGroup(out))
		}
	}
	for _, name := range ref.BlendNames() {
		for _, comp := range ref.Blends[name].Components {
			add(nodeID(ref, comp), "Blend_"+name)
		}
	}
	return edges
}

func formatStyle(style NodeStyle) string {
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(style)) {
		sb.WriteString(fmt.Sprintf(", %s=\"%s\"", k, style[k]))
	}
	return sb.String()
}
