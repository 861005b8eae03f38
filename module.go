package hawk

import (
	"os"
	"strings"
)

// ModuleFunc is a single `ns::sym` entry point. Args are already
// evaluated; the return value becomes the call expression's result.
type ModuleFunc func(rt *Runtime, args []Value) Value

// Module groups a namespace's callable symbols and named constants,
// mirroring spec.md §4.6's module registry ("resolves `ns::sym` calls
// against a small built-in registry of namespaces").
type Module struct {
	Name    string
	Funcs   map[string]ModuleFunc
	Consts  map[string]Value
}

// ModuleRegistry is the engine-wide table of namespaces, populated at
// Runtime construction with the handful of built-in modules spec.md
// describes (`hawk::`, `sys::`, `math::`, `str::`).
type ModuleRegistry struct {
	opts    *Options
	modules map[string]*Module
}

func NewModuleRegistry(opts *Options) *ModuleRegistry {
	r := &ModuleRegistry{opts: opts, modules: map[string]*Module{}}
	r.register(hawkModule())
	r.register(mathModule())
	r.register(strModule())
	r.register(sysModule())
	return r
}

func (r *ModuleRegistry) register(m *Module) { r.modules[m.Name] = m }

func (r *ModuleRegistry) Call(rt *Runtime, ns, sym string, args []Value) Value {
	m, ok := r.modules[ns]
	if !ok {
		panic(rt.gem.Errorf(ErrUndefined, Location{}, "unknown module `%s`", ns))
	}
	fn, ok := m.Funcs[sym]
	if !ok {
		panic(rt.gem.Errorf(ErrUndefined, Location{}, "unknown symbol `%s::%s`", ns, sym))
	}
	return fn(rt, args)
}

// LookupNamed resolves a `ns::CONST`-style named reference used in
// value position rather than call position.
func (r *ModuleRegistry) LookupNamed(qualified string) Value {
	for ns, m := range r.modules {
		prefix := ns + "::"
		if len(qualified) > len(prefix) && qualified[:len(prefix)] == prefix {
			if v, ok := m.Consts[qualified[len(prefix):]]; ok {
				return v
			}
		}
	}
	return Nil
}

// hawkModule exposes engine-introspection calls: the GC controls
// named in spec.md §4.4's "User API" and §8.3's GC scenario
// (`hawk::gc()`).
func hawkModule() *Module {
	return &Module{
		Name: "hawk",
		Funcs: map[string]ModuleFunc{
			"gc": func(rt *Runtime, args []Value) Value {
				gen := numGenerations - 1
				if len(args) > 0 {
					gen = int(ToInt(args[0], true))
				}
				rt.gc.Collect(gen)
				return Nil
			},
			"gc_threshold": func(rt *Runtime, args []Value) Value {
				if len(args) == 0 {
					return Nil
				}
				gen := int(ToInt(args[0], true))
				if len(args) >= 2 {
					rt.gc.SetThreshold(gen, int(ToInt(args[1], true)))
					return Nil
				}
				return Int(int64(rt.gc.GetThreshold(gen)))
			},
			"gc_pressure": func(rt *Runtime, args []Value) Value {
				gen := 0
				if len(args) > 0 {
					gen = int(ToInt(args[0], true))
				}
				return Int(int64(rt.gc.GetPressure(gen)))
			},
			"refs": func(rt *Runtime, args []Value) Value {
				if len(args) == 0 {
					return Int(0)
				}
				return Int(int64(GCRefs(args[0])))
			},
			"version": func(rt *Runtime, args []Value) Value {
				return rt.NewString("hawk/1.0")
			},
		},
		Consts: map[string]Value{
			"GEN_YOUNG": Int(0),
			"GEN_MID":   Int(1),
			"GEN_OLD":   Int(2),
		},
	}
}

func mathModule() *Module {
	return &Module{
		Name: "math",
		Funcs: map[string]ModuleFunc{
			"max": func(rt *Runtime, args []Value) Value {
				if len(args) == 0 {
					return Nil
				}
				best := ToFloat(args[0], true)
				for _, a := range args[1:] {
					if f := ToFloat(a, true); f > best {
						best = f
					}
				}
				return numFromFloat(best)
			},
			"min": func(rt *Runtime, args []Value) Value {
				if len(args) == 0 {
					return Nil
				}
				best := ToFloat(args[0], true)
				for _, a := range args[1:] {
					if f := ToFloat(a, true); f < best {
						best = f
					}
				}
				return numFromFloat(best)
			},
		},
		Consts: map[string]Value{
			"PI": Float(3.14159265358979323846),
			"E":  Float(2.71828182845904523536),
		},
	}
}

func strModule() *Module {
	return &Module{
		Name: "str",
		Funcs: map[string]ModuleFunc{
			"trim": func(rt *Runtime, args []Value) Value {
				if len(args) == 0 {
					return EmptyString
				}
				return rt.NewString(strings.TrimSpace(ToStr(rt, args[0])))
			},
		},
	}
}

func sysModule() *Module {
	return &Module{
		Name: "sys",
		Funcs: map[string]ModuleFunc{
			"getenv": func(rt *Runtime, args []Value) Value {
				if len(args) == 0 {
					return EmptyString
				}
				return rt.NewString(os.Getenv(ToStr(rt, args[0])))
			},
		},
	}
}
