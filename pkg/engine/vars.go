package engine

import "fmt"

// VarID is an opaque handle into an Arena.
type VarID int

// NoVar marks an unset handle.
const NoVar VarID = -1

// VarKind tags what a variable stands for.
type VarKind string

const (
	// VarFeed is the quantity of a feed entering a unit.
	VarFeed VarKind = "feed"

	// VarAllocation is the quantity of a component allocated to a blend.
	VarAllocation VarKind = "alloc"

	// VarTotal is the total quantity of a blend.
	VarTotal VarKind = "total"

	// VarAuxiliary is an auxiliary unknown introduced by a linearization.
	VarAuxiliary VarKind = "aux"
)

// Variable is one nonnegative decision unknown.
type Variable struct {
	ID    VarID   `json:"id"`
	Kind  VarKind `json:"kind"`
	Name  string  `json:"name"`
	Owner string  `json:"owner"`
}

// Arena owns every variable of a model. Entities refer to variables only by VarID,
// so two entities sharing an edge see the same unknown.
type Arena struct {
	vars  []Variable
	index map[string]VarID
	aux   map[string]int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		index: make(map[string]VarID),
		aux:   make(map[string]int),
	}
}

// Declare creates a variable with a unique name. Declaring the same edge twice
// is an internal error.
func (a *Arena) Declare(kind VarKind, owner, name string) (VarID, error) {
	if _, exists := a.index[name]; exists {
		return NoVar, NewInternalError("variable declared twice", nil).
			WithEntity(owner).
			WithDetail("variable", name)
	}
	id := VarID(len(a.vars))
	a.vars = append(a.vars, Variable{ID: id, Kind: kind, Name: name, Owner: owner})
	a.index[name] = id
	return id, nil
}

// NewAuxiliary creates a fresh auxiliary variable owned by owner.
func (a *Arena) NewAuxiliary(owner string) VarID {
	k := a.aux[owner]
	a.aux[owner] = k + 1
	name := fmt.Sprintf("aux[%s#%d]", owner, k)
	id := VarID(len(a.vars))
	a.vars = append(a.vars, Variable{ID: id, Kind: VarAuxiliary, Name: name, Owner: owner})
	a.index[name] = id
	return id
}

// Len returns the number of variables.
func (a *Arena) Len() int { return len(a.vars) }

// Var returns the variable for id.
func (a *Arena) Var(id VarID) (Variable, bool) {
	if id < 0 || int(id) >= len(a.vars) {
		return Variable{}, false
	}
	return a.vars[id], true
}

// Lookup finds a variable by name.
func (a *Arena) Lookup(name string) (VarID, bool) {
	id, ok := a.index[name]
	return id, ok
}

// Variables returns all variables in creation order.
func (a *Arena) Variables() []Variable {
	out := make([]Variable, len(a.vars))
	copy(out, a.vars)
	return out
}

// CountKind returns the number of variables of the given kind.
func (a *Arena) CountKind(kind VarKind) int {
	n := 0
	for _, v := range a.vars {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

func feedVarName(unit, feed string) string   { return fmt.Sprintf("feed[%s,%s]", unit, feed) }
func allocVarName(blend, comp string) string { return fmt.Sprintf("alloc[%s,%s]", blend, comp) }
func totalVarName(blend string) string       { return fmt.Sprintf("total[%s]", blend) }
