package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/policy"
)

// WriteLevels prints units and pools grouped by level, followed by the
// leveling diagnostics.
func WriteLevels(w io.Writer, lr engine.LevelReport) error {
	t := textTable("Levels", "Level", "Units", "Pools")

	pools := make(map[int][]string)
	for _, name := range slices.Sorted(maps.Keys(lr.Pools)) {
		pools[lr.Pools[name]] = append(pools[lr.Pools[name]], name)
	}
	units := lr.ByLevel()

	levels := slices.Sorted(maps.Keys(units))
	for l := range pools {
		if !slices.Contains(levels, l) {
			levels = append(levels, l)
		}
	}
	slices.Sort(levels)

	for _, l := range levels {
		t.add(strconv.Itoa(l), strings.Join(units[l], " "), strings.Join(pools[l], " "))
	}
	t.section()
	t.add("passes", strconv.Itoa(lr.Passes), "")
	if err := t.render(w); err != nil {
		return err
	}

	var b strings.Builder
	if len(lr.Unresolved) > 0 {
		fmt.Fprintf(&b, "unresolved units placed at level 1: %s\n", strings.Join(lr.Unresolved, ", "))
	}
	if len(lr.Orphans) > 0 {
		fmt.Fprintf(&b, "pools without a producer: %s\n", strings.Join(lr.Orphans, ", "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteLint prints lint findings. Nothing is printed for a clean network.
func WriteLint(w io.Writer, r *policy.Result) error {
	if r == nil || (len(r.Violations) == 0 && len(r.Failures) == 0) {
		return nil
	}
	t := textTable("Lint", "Severity", "Policy", "Entity", "Message")
	for _, v := range r.Violations {
		t.add(string(v.Severity), v.Policy, v.Entity, v.Message)
	}
	for _, f := range r.Failures {
		t.add("failure", "", "", f)
	}
	return t.render(w)
}
