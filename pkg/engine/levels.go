package engine

import (
	"maps"
	"slices"
)

// LevelReport is the outcome of level assignment.
type LevelReport struct {
	// Units maps unit name to level (1 or more).
	Units map[string]int `json:"units"`

	// Pools maps pool name to level (0 or more).
	Pools map[string]int `json:"pools"`

	// Unresolved lists units that fell back to level 1 because a producer
	// level could never be computed (cycles, feeds without producer).
	Unresolved []string `json:"unresolved,omitempty"`

	// Orphans lists pools without any producing unit.
	Orphans []string `json:"orphans,omitempty"`

	// Passes is the number of fixed-point passes that were run.
	Passes int `json:"passes"`
}

// Resolved reports whether every unit received a computed level.
func (r LevelReport) Resolved() bool { return len(r.Unresolved) == 0 }

// Depth returns the highest unit level.
func (r LevelReport) Depth() int {
	depth := 0
	for _, l := range r.Units {
		depth = max(depth, l)
	}
	return depth
}

// ByLevel groups unit names per level, each group sorted.
func (r LevelReport) ByLevel() map[int][]string {
	out := make(map[int][]string)
	for _, name := range slices.Sorted(maps.Keys(r.Units)) {
		l := r.Units[name]
		out[l] = append(out[l], name)
	}
	return out
}

// AssignLevels computes unit and pool levels and stores them on the entities.
// It only reads the graph structure, so running it again gives the same result.
func (r *Refinery) AssignLevels() LevelReport {
	levels := make(map[string]int, len(r.Units))
	names := r.UnitNames()

	for _, name := range names {
		if r.crudeOnly(r.Units[name]) {
			levels[name] = 1
		}
	}

	passes := 0
	for len(levels) < len(names) {
		passes++
		progress := false
		for _, name := range names {
			if _, done := levels[name]; done {
				continue
			}
			if l, ok := r.computeLevel(r.Units[name], levels); ok {
				levels[name] = l
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	report := LevelReport{
		Units:  make(map[string]int, len(names)),
		Pools:  make(map[string]int, len(r.Pools)),
		Passes: passes,
	}
	for _, name := range names {
		l, ok := levels[name]
		if !ok {
			l = 1
			report.Unresolved = append(report.Unresolved, name)
		}
		r.Units[name].Level = l
		report.Units[name] = l
	}

	for _, name := range r.PoolNames() {
		p := r.Pools[name]
		l := 0
		if !r.IsCrude(name) {
			if len(p.Producers) == 0 {
				report.Orphans = append(report.Orphans, name)
			}
			for _, producer := range p.Producers {
				l = max(l, report.Units[producer])
			}
		}
		p.Level = l
		report.Pools[name] = l
	}

	r.levels = &report
	return report
}

// Levels returns the last level report, computing it if needed.
func (r *Refinery) Levels() LevelReport {
	if r.levels == nil {
		return r.AssignLevels()
	}
	return *r.levels
}

func (r *Refinery) crudeOnly(u *Unit) bool {
	for feed := range u.Yields {
		if !r.IsCrude(feed) {
			return false
		}
	}
	return true
}

// computeLevel returns 1 + the highest producer level over all non-crude feeds,
// or false while some producer is unknown or a feed has no producer.
func (r *Refinery) computeLevel(u *Unit, levels map[string]int) (int, bool) {
	highest := 0
	for feed := range u.Yields {
		if r.IsCrude(feed) {
			continue
		}
		pool, ok := r.Pools[feed]
		if !ok || len(pool.Producers) == 0 {
			return 0, false
		}
		for _, producer := range pool.Producers {
			l, known := levels[producer]
			if !known {
				return 0, false
			}
			highest = max(highest, l)
		}
	}
	return highest + 1, true
}
