package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/repop/repop/pkg/engine"
)

// StarlarkEvaluator compiles Starlark constraint scripts into registry builders.
//
// A script defines build(owner, props, plant) and returns a list of relations.
// Each relation is a dict {"lhs": expr, "sense": "<=" | ">=" | "==", "rhs": expr}
// with an optional "name"; the helpers le, ge and eq build them. An expression is
// a number, a handle string or a dict {handle: coefficient}, where the key
// "const" adds a constant. Handles:
//
//	total:BLEND             blend total
//	alloc:BLEND:COMPONENT   allocation of a component to a blend
//	feed:UNIT:FEED          feed of a unit
//	throughput:UNIT         sum of a unit's feeds
//	output:UNIT:POOL        yield-weighted output of a unit into a pool
//	aux:NAME                fresh auxiliary variable, shared within one call
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// RegisterScripts compiles every script and registers it under its kind.
func (se *StarlarkEvaluator) RegisterScripts(reg *engine.Registry, scripts map[string]ScriptConfig) error {
	kinds := make([]string, 0, len(scripts))
	for kind := range scripts {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)

	for _, kind := range kinds {
		script := scripts[kind]
		builder, err := se.Compile(kind, script.Source)
		if err != nil {
			return err
		}
		if err := reg.Register(engine.Scope(script.Scope), kind, builder); err != nil {
			return err
		}
	}
	return nil
}

// Compile executes source once and returns a builder that calls its build function.
func (se *StarlarkEvaluator) Compile(kind, source string) (engine.Builder, error) {
	thread := se.newThread(kind)
	stop := time.AfterFunc(se.timeout, func() { thread.Cancel("timeout") })
	globals, err := starlark.ExecFile(thread, kind+".star", source, predeclared())
	stop.Stop()
	if err != nil {
		return nil, engine.NewRegistryError(fmt.Sprintf("failed to load script for %s", kind), err).WithKind(kind)
	}

	fn, ok := globals["build"].(starlark.Callable)
	if !ok {
		return nil, engine.NewRegistryError(fmt.Sprintf("script for %s does not define build(owner, props, plant)", kind), nil).WithKind(kind)
	}

	return func(v *engine.View, owner string, props engine.Properties) ([]engine.Relation, error) {
		rels, err := se.call(kind, fn, v, owner, props)
		if err != nil {
			return nil, engine.NewValidationError("scripted constraint failed", err).
				WithEntity(owner).
				WithKind(kind)
		}
		return rels, nil
	}, nil
}

func (se *StarlarkEvaluator) newThread(kind string) *starlark.Thread {
	return &starlark.Thread{
		Name: kind,
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug().Str("script", kind).Msg(msg)
		},
	}
}

func (se *StarlarkEvaluator) call(kind string, fn starlark.Callable, v *engine.View, owner string, props engine.Properties) ([]engine.Relation, error) {
	propsVal, err := toStarlarkValue(map[string]any(props))
	if err != nil {
		return nil, fmt.Errorf("failed to convert props: %w", err)
	}
	plantVal, err := toStarlarkValue(plantInfo(v.Refinery()))
	if err != nil {
		return nil, fmt.Errorf("failed to convert plant: %w", err)
	}

	thread := se.newThread(kind)
	stop := time.AfterFunc(se.timeout, func() { thread.Cancel("timeout") })
	res, err := starlark.Call(thread, fn, starlark.Tuple{starlark.String(owner), propsVal, plantVal}, nil)
	stop.Stop()
	if err != nil {
		return nil, err
	}

	raw, err := fromStarlarkValue(res)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("build must return a list of relations, got %s", res.Type())
	}

	h := &handles{view: v, owner: owner, aux: make(map[string]engine.VarID)}
	rels := make([]engine.Relation, 0, len(items))
	for i, item := range items {
		rel, err := h.relation(fmt.Sprintf("%s[%s#%d]", kind, owner, i), item)
		if err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// handles resolves script handles against the variables of one assembly.
type handles struct {
	view  *engine.View
	owner string
	aux   map[string]engine.VarID
}

func (h *handles) relation(defaultName string, raw any) (engine.Relation, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return engine.Relation{}, fmt.Errorf("expected dict, got %T", raw)
	}

	name := defaultName
	if s, ok := m["name"].(string); ok && s != "" {
		name = s
	}

	sense, err := parseSense(m["sense"])
	if err != nil {
		return engine.Relation{}, err
	}
	lhs, err := h.expr(m["lhs"])
	if err != nil {
		return engine.Relation{}, fmt.Errorf("lhs: %w", err)
	}
	rhs, err := h.expr(m["rhs"])
	if err != nil {
		return engine.Relation{}, fmt.Errorf("rhs: %w", err)
	}

	return engine.Relation{Name: name, LHS: lhs, Sense: sense, RHS: rhs}, nil
}

func parseSense(raw any) (engine.Sense, error) {
	s, _ := raw.(string)
	switch strings.ToLower(s) {
	case "<=", "le":
		return engine.LessEqual, nil
	case ">=", "ge":
		return engine.GreaterEqual, nil
	case "==", "=", "eq":
		return engine.Equal, nil
	default:
		return 0, fmt.Errorf("invalid sense %q", s)
	}
}

func (h *handles) expr(raw any) (engine.LinExpr, error) {
	switch x := raw.(type) {
	case nil:
		return engine.LinExpr{}, nil
	case int64:
		return engine.Const(float64(x)), nil
	case float64:
		return engine.Const(x), nil
	case string:
		return h.resolve(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		var out engine.LinExpr
		for _, k := range keys {
			coef, err := engine.Properties(x).Float(k)
			if err != nil {
				return engine.LinExpr{}, err
			}
			if k == "const" {
				out = out.Plus(engine.Const(coef))
				continue
			}
			term, err := h.resolve(k)
			if err != nil {
				return engine.LinExpr{}, err
			}
			out = out.Plus(term.Scale(coef))
		}
		return out, nil
	default:
		return engine.LinExpr{}, fmt.Errorf("unsupported expression %T", raw)
	}
}

func (h *handles) resolve(handle string) (engine.LinExpr, error) {
	kind, rest, _ := strings.Cut(handle, ":")
	a, b, _ := strings.Cut(rest, ":")
	v := h.view

	switch kind {
	case "total":
		return v.BlendTotal(rest)
	case "alloc":
		id, err := v.Allocation(a, b)
		return engine.Sum(id), err
	case "feed":
		id, err := v.UnitFeed(a, b)
		return engine.Sum(id), err
	case "throughput":
		return v.UnitThroughput(rest)
	case "output":
		return v.UnitOutput(a, b)
	case "aux":
		id, ok := h.aux[rest]
		if !ok {
			id = v.NewAuxiliary(h.owner)
			h.aux[rest] = id
		}
		return engine.Sum(id), nil
	default:
		return engine.LinExpr{}, fmt.Errorf("unknown handle %q", handle)
	}
}

// plantInfo is the read-only view of the network passed to scripts.
func plantInfo(ref *engine.Refinery) map[string]any {
	crudes := make(map[string]any, len(ref.Crudes))
	for name, c := range ref.Crudes {
		crudes[name] = map[string]any{
			"availability": c.Availability,
			"cost":         c.Cost,
			"properties":   floatMap(c.Properties),
		}
	}

	units := make(map[string]any, len(ref.Units))
	for name, u := range ref.Units {
		units[name] = map[string]any{
			"capacity": u.Capacity,
			"cost":     u.Cost,
			"level":    u.Level,
			"feeds":    stringList(u.FeedsOf()),
			"outputs":  stringList(u.OutputsOf()),
		}
	}

	pools := make(map[string]any, len(ref.Pools))
	for name, p := range ref.Pools {
		pools[name] = map[string]any{
			"level":      p.Level,
			"producers":  stringList(p.Producers),
			"properties": floatMap(p.Properties),
		}
	}

	blends := make(map[string]any, len(ref.Blends))
	for name, b := range ref.Blends {
		blends[name] = map[string]any{
			"price":      b.Price,
			"components": stringList(b.Components),
		}
	}

	return map[string]any{
		"crudes": crudes,
		"units":  units,
		"pools":  pools,
		"blends": blends,
	}
}

func floatMap(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringList(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlarkstruct.Default,
		"le":     starlark.NewBuiltin("le", relationBuiltin("<=")),
		"ge":     starlark.NewBuiltin("ge", relationBuiltin(">=")),
		"eq":     starlark.NewBuiltin("eq", relationBuiltin("==")),
	}
}

// relationBuiltin returns a builtin producing {"lhs", "sense", "rhs", "name"}.
func relationBuiltin(sense string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var lhs, rhs starlark.Value
		var name starlark.String
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "lhs", &lhs, "rhs", &rhs, "name?", &name); err != nil {
			return nil, err
		}
		d := starlark.NewDict(4)
		_ = d.SetKey(starlark.String("lhs"), lhs)
		_ = d.SetKey(starlark.String("sense"), starlark.String(sense))
		_ = d.SetKey(starlark.String("rhs"), rhs)
		if name != "" {
			_ = d.SetKey(starlark.String("name"), name)
		}
		return d, nil
	}
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromSequence(val)
	case starlark.Tuple:
		return fromSequence(val)
	case *starlark.Dict:
		dict := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromSequence(seq starlark.Indexable) ([]any, error) {
	list := make([]any, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		item, err := fromStarlarkValue(seq.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}
