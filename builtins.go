package hawk

import (
	"math"
	"sort"
	"strings"
)

// builtinFunc evaluates a CallExpr whose arguments have not yet been
// evaluated, since a few intrinsics (split/sub/gsub/delete-adjacent
// forms) need an lvalue rather than a value for some parameters.
type builtinFunc func(rt *Runtime, call *CallExpr) Value

var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"length":   biLength,
		"substr":   biSubstr,
		"index":    biIndex,
		"split":    biSplit,
		"sub":      biSub,
		"gsub":     biGsub,
		"gensub":   biGensub,
		"match":    biMatch,
		"sprintf":  biSprintf,
		"toupper":  biToUpper,
		"tolower":  biToLower,
		"sin":      biMath1(math.Sin),
		"cos":      biMath1(math.Cos),
		"atan2":    biAtan2,
		"exp":      biMath1(math.Exp),
		"log":      biMath1(math.Log),
		"sqrt":     biMath1(math.Sqrt),
		"int":      biInt,
		"rand":     biRand,
		"srand":    biSrand,
		"system":   biSystem,
		"close":    biClose,
		"fflush":   biFflush,
		"asort":    biAsort,
		"asorti":   biAsorti,
		"typename": biTypename,
		"typeof":   biTypename, // pre-existing alias, kept for compatibility
		"str":      biStr,
		"join":     biJoin,
	}
}

func (rt *Runtime) evalArg(call *CallExpr, i int) Value {
	if i >= len(call.Args) {
		return Nil
	}
	return rt.eval(call.Args[i])
}

func biLength(rt *Runtime, call *CallExpr) Value {
	if len(call.Args) == 0 {
		return Int(int64(len(rt.rec.Field(0))))
	}
	if ref, ok := call.Args[0].(*VarRef); ok {
		if v := rt.readVar(ref); v != Nil {
			switch a := v.(type) {
			case *MapVal:
				return Int(int64(a.Len()))
			case *ArrayVal:
				return Int(int64(a.Len()))
			}
		}
	}
	v := rt.eval(call.Args[0])
	return Int(int64(len([]rune(ToStr(rt, v)))))
}

func biSubstr(rt *Runtime, call *CallExpr) Value {
	s := []rune(ToStr(rt, rt.evalArg(call, 0)))
	start := int(ToInt(rt.evalArg(call, 1), true))
	n := len(s)
	length := n
	if len(call.Args) >= 3 {
		length = int(ToInt(rt.evalArg(call, 2), true))
	}
	// AWK substr is 1-based and clamps, per spec.md §4 string builtins.
	if start < 1 {
		length += start - 1
		start = 1
	}
	if length < 0 {
		length = 0
	}
	end := start - 1 + length
	if end > n {
		end = n
	}
	if start-1 > n || start-1 >= end {
		return EmptyString
	}
	return rt.NewString(string(s[start-1 : end]))
}

func biIndex(rt *Runtime, call *CallExpr) Value {
	s := ToStr(rt, rt.evalArg(call, 0))
	t := ToStr(rt, rt.evalArg(call, 1))
	i := strings.Index(s, t)
	if i < 0 {
		return Int(0)
	}
	return Int(int64(len([]rune(s[:i])) + 1))
}

func biSplit(rt *Runtime, call *CallExpr) Value {
	s := ToStr(rt, rt.evalArg(call, 0))
	if len(call.Args) < 2 {
		return Int(0)
	}
	ref, ok := call.Args[1].(*VarRef)
	if !ok {
		return Int(0)
	}
	fs := ToStr(rt, rt.getGlobalByName("FS"))
	if len(call.Args) >= 3 {
		fs = ToStr(rt, rt.evalArg(call, 2))
	}
	var parts []string
	if s == "" {
		parts = nil
	} else {
		parts = splitFields(s, fs)[1:]
	}
	arr := NewArray(rt.gc)
	for i, p := range parts {
		arr.Set(i+1, rt.NewNumericString(p))
	}
	rt.assignVar(ref, arr)
	return Int(int64(len(parts)))
}

func biSub(rt *Runtime, call *CallExpr) Value   { return substituteCall(rt, call, false) }
func biGsub(rt *Runtime, call *CallExpr) Value  { return substituteCall(rt, call, true) }

func substituteCall(rt *Runtime, call *CallExpr, global bool) Value {
	re := rt.regexOf(call.Args[0])
	repl := ToStr(rt, rt.evalArg(call, 1))
	var target Expr = &FieldExpr{}
	if len(call.Args) >= 3 {
		target = call.Args[2]
	}
	cur := ToStr(rt, rt.eval(target))
	out, n := regexSubstitute(re, repl, cur, global)
	if n > 0 {
		rt.assignExprTo(target, rt.NewString(out))
	}
	return Int(int64(n))
}

// regexSubstitute implements AWK's sub/gsub replacement-text rule:
// `&` in repl expands to the whole match, `\&` is a literal ampersand.
func regexSubstitute(re *RegexVal, repl, s string, global bool) (string, int) {
	var sb strings.Builder
	count := 0
	rest := s
	for {
		loc := re.Compiled.FindStringIndex(rest)
		if loc == nil {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:loc[0]])
		match := rest[loc[0]:loc[1]]
		sb.WriteString(expandAmp(repl, match))
		count++
		if loc[1] == loc[0] {
			if loc[1] < len(rest) {
				sb.WriteByte(rest[loc[1]])
				rest = rest[loc[1]+1:]
			} else {
				rest = ""
			}
		} else {
			rest = rest[loc[1]:]
		}
		if !global || rest == "" {
			sb.WriteString(rest)
			break
		}
	}
	return sb.String(), count
}

func expandAmp(repl, match string) string {
	var sb strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c == '\\' && i+1 < len(repl) && repl[i+1] == '&' {
			sb.WriteByte('&')
			i++
			continue
		}
		if c == '&' {
			sb.WriteString(match)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func biGensub(rt *Runtime, call *CallExpr) Value {
	re := rt.regexOf(call.Args[0])
	repl := ToStr(rt, rt.evalArg(call, 1))
	how := "g"
	if len(call.Args) >= 3 {
		how = ToStr(rt, rt.evalArg(call, 2))
	}
	target := ""
	if len(call.Args) >= 4 {
		target = ToStr(rt, rt.evalArg(call, 3))
	} else {
		target = rt.rec.Field(0)
	}
	global := how == "g" || how == "G"
	out, _ := regexSubstitute(re, repl, target, global)
	return rt.NewString(out)
}

func biMatch(rt *Runtime, call *CallExpr) Value {
	s := ToStr(rt, rt.evalArg(call, 0))
	re := rt.regexOf(call.Args[1])
	loc := re.Compiled.FindStringIndex(s)
	if loc == nil {
		rt.setGlobalByName("RSTART", Int(0))
		rt.setGlobalByName("RLENGTH", Int(-1))
		return Int(0)
	}
	start := len([]rune(s[:loc[0]])) + 1
	length := len([]rune(s[loc[0]:loc[1]]))
	rt.setGlobalByName("RSTART", Int(int64(start)))
	rt.setGlobalByName("RLENGTH", Int(int64(length)))
	return Int(int64(start))
}

func biSprintf(rt *Runtime, call *CallExpr) Value {
	if len(call.Args) == 0 {
		return EmptyString
	}
	format := ToStr(rt, rt.evalArg(call, 0))
	args := make([]Value, len(call.Args)-1)
	for i := range args {
		args[i] = rt.evalArg(call, i+1)
	}
	return rt.NewString(sprintf(rt, format, args))
}

func biToUpper(rt *Runtime, call *CallExpr) Value {
	return rt.NewString(strings.ToUpper(ToStr(rt, rt.evalArg(call, 0))))
}
func biToLower(rt *Runtime, call *CallExpr) Value {
	return rt.NewString(strings.ToLower(ToStr(rt, rt.evalArg(call, 0))))
}

func biMath1(f func(float64) float64) builtinFunc {
	return func(rt *Runtime, call *CallExpr) Value {
		return Float(f(ToFloat(rt.evalArg(call, 0), true)))
	}
}

func biAtan2(rt *Runtime, call *CallExpr) Value {
	return Float(math.Atan2(ToFloat(rt.evalArg(call, 0), true), ToFloat(rt.evalArg(call, 1), true)))
}

func biInt(rt *Runtime, call *CallExpr) Value {
	return Int(int64(ToFloat(rt.evalArg(call, 0), true)))
}

func biRand(rt *Runtime, call *CallExpr) Value { return Float(rt.Rand()) }

func biSrand(rt *Runtime, call *CallExpr) Value {
	seed := int64(0)
	if len(call.Args) > 0 {
		seed = int64(ToInt(rt.evalArg(call, 0), true))
	}
	return Int(rt.Srand(seed))
}

func biSystem(rt *Runtime, call *CallExpr) Value {
	return Int(rt.System(ToStr(rt, rt.evalArg(call, 0))))
}

func biClose(rt *Runtime, call *CallExpr) Value {
	return Int(rt.CloseStream(ToStr(rt, rt.evalArg(call, 0))))
}

func biFflush(rt *Runtime, call *CallExpr) Value {
	if len(call.Args) == 0 {
		rt.FlushAll()
		return Int(0)
	}
	target := ToStr(rt, rt.evalArg(call, 0))
	if s, ok := rt.files[target]; ok {
		s.w.Flush()
	}
	if s, ok := rt.pipes[target]; ok {
		s.w.Flush()
	}
	return Int(0)
}

func biAsort(rt *Runtime, call *CallExpr) Value  { return asortImpl(rt, call, false) }
func biAsorti(rt *Runtime, call *CallExpr) Value { return asortImpl(rt, call, true) }

func asortImpl(rt *Runtime, call *CallExpr, byKey bool) Value {
	if len(call.Args) == 0 {
		return Int(0)
	}
	srcRef, ok := call.Args[0].(*VarRef)
	if !ok {
		return Int(0)
	}
	src := rt.resolveArray(srcRef)
	m, ok := src.(*MapVal)
	if !ok {
		return Int(0)
	}
	keys := m.Keys()
	var strs []string
	if byKey {
		strs = append([]string(nil), keys...)
	} else {
		for _, k := range keys {
			v, _ := m.Get(k)
			strs = append(strs, ToStr(rt, v))
		}
	}
	sort.Strings(strs)

	destRef := srcRef
	if len(call.Args) >= 2 {
		if r, ok := call.Args[1].(*VarRef); ok {
			destRef = r
		}
	}
	out := NewArray(rt.gc)
	for i, v := range strs {
		out.Set(i+1, rt.NewNumericString(v))
	}
	rt.assignVar(destRef, out)
	return Int(int64(len(strs)))
}

// biTypename implements the core `typename(x)` intrinsic.
func biTypename(rt *Runtime, call *CallExpr) Value {
	v := rt.evalArg(call, 0)
	return rt.NewString(v.Kind().String())
}

// biStr implements the core `str(x)` intrinsic: an explicit cast to
// string, using the same coercion rules as implicit string context.
func biStr(rt *Runtime, call *CallExpr) Value {
	return rt.NewString(ToStr(rt, rt.evalArg(call, 0)))
}

func biJoin(rt *Runtime, call *CallExpr) Value {
	if len(call.Args) == 0 {
		return EmptyString
	}
	ref, ok := call.Args[0].(*VarRef)
	if !ok {
		return EmptyString
	}
	sep := " "
	if len(call.Args) >= 2 {
		sep = ToStr(rt, rt.evalArg(call, 1))
	}
	arr := rt.resolveArray(ref)
	var parts []string
	switch a := arr.(type) {
	case *ArrayVal:
		for i := 1; i <= a.Len(); i++ {
			v, _ := a.Get(i)
			if v == nil {
				v = Nil
			}
			parts = append(parts, ToStr(rt, v))
		}
	case *MapVal:
		for _, k := range a.Keys() {
			v, _ := a.Get(k)
			parts = append(parts, ToStr(rt, v))
		}
	}
	return rt.NewString(strings.Join(parts, sep))
}
