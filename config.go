package hawk

import "fmt"

// Options is the typed settings bag threaded from the embedding layer
// into the parser and runtime (spec.md §6.5): dialect traits toggled
// by `@pragma`, scalar runtime controls, and search paths. Keyed the
// same way across the whole engine so `@pragma stack_limit 4096;`
// and a programmatic `opts.SetInt("runtime.stack_limit", 4096)` reach
// the same slot.
type Options map[string]*cfgVal

// NewOptions creates an options bag primed with the engine's default
// dialect: implicit named-variable creation on, blank-concat on,
// multiline strings off, bidirectional pipes off, whitespace-only FS
// stripping on, numeric-string detection on.
func NewOptions() *Options {
	m := make(Options)
	m.SetBool("dialect.implicit", true)
	m.SetBool("dialect.multilinestr", false)
	m.SetBool("dialect.rwpipe", false)
	m.SetBool("dialect.striprecspc", true)
	m.SetBool("dialect.stripstrspc", true)
	m.SetBool("dialect.numstrdetect", true)
	m.SetBool("dialect.blankconcat", true)
	m.SetBool("dialect.nextofile", false)

	m.SetInt("runtime.stack_limit", 0) // 0 = built-in default depth (1<<20 frames)
	m.SetString("runtime.entry", "")

	m.SetInt("limit.include_depth", 64)
	m.SetInt("limit.block_depth", 256)
	m.SetInt("limit.expr_depth", 512)

	m.SetString("module.prefix", "hawk-mod-")
	m.SetString("module.postfix", "")
	m.SetString("module.libdirs", "")
	return &m
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
	cfgValType_String
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
		cfgValType_String:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValType_Undefined {
		panic(fmt.Sprintf("can't assign `%s` to type `%s`", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("can't retrieve `%s` from `%s` setting", vt, v.typ))
	}
}

func (c *Options) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Bool)
	(*c)[path].asBool = v
}

func (c *Options) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Int)
	(*c)[path].asInt = v
}

func (c *Options) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_String)
	(*c)[path].asString = v
}

func (c *Options) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	panic(fmt.Sprintf("bool setting `%s` does not exist", path))
}

func (c *Options) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	panic(fmt.Sprintf("int setting `%s` does not exist", path))
}

func (c *Options) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_String)
		return val.asString
	}
	panic(fmt.Sprintf("string setting `%s` does not exist", path))
}

// HasBool reports whether path is a bool setting and, if so, its value.
// Used by the pragma handler to accept either a bool or scalar
// setting under the same name without panicking on the wrong type.
func (c *Options) HasBool(path string) (bool, bool) {
	val, ok := (*c)[path]
	if !ok || val.typ != cfgValType_Bool {
		return false, false
	}
	return val.asBool, true
}

// Clone returns a deep copy, used to snapshot pragma state across
// `@include` boundaries (spec.md §4.2: "the parser saves current
// pragmas on the include-stack node and restores them on close").
func (c *Options) Clone() *Options {
	out := make(Options, len(*c))
	for k, v := range *c {
		cp := *v
		out[k] = &cp
	}
	return &out
}
