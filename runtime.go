package hawk

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// frame is one entry of the runtime call stack: the called function,
// the locals slice for this activation (params first), by-ref markers
// for those slots, and the argument values the caller passed.
type frame struct {
	fn      *FuncDef
	locals  []Value
	refArgs []bool // true where the matching local slot is a by-ref param

	// callArgs holds every value the caller actually passed, in
	// order, regardless of how many fixed params fn declares — the
	// source @argc/@argv read from (spec.md §4.5's "enclosing
	// function's argument vector", kept distinct from the global
	// ARGC/ARGV).
	callArgs []Value
}

// Runtime is the tree-walking evaluator: value domain owner (GC,
// string cache), global/record state, and call stack (spec.md §3
// "Runtime"). One Runtime executes exactly one Program.
type Runtime struct {
	gem  *Gem
	gc   *GC
	opts *Options

	strCache *strCache

	prog    *Program
	globals []Value

	frames []*frame

	rec *Record

	modules *ModuleRegistry

	argv []string

	out io.Writer
	in  io.Reader
	err io.Writer

	files   map[string]*ioStream
	pipes   map[string]*ioStream
	inFiles map[string]*ioStream
	inPipes map[string]*ioStream
	rng     *rngState
	seed    int64

	exitCode   int
	exiting    bool
	aborting   bool
	abortValue Value
}

// control-flow signals threaded back up through exec via panic/recover,
// matching the teacher's backtrackingError idiom for non-local exits.
type ctrlSignal int

const (
	ctrlNone ctrlSignal = iota
	ctrlBreak
	ctrlContinue
	ctrlNext
	ctrlNextFile
	ctrlNextOFile
	ctrlReturn
	ctrlExit
	ctrlAbort
)

type ctrlUnwind struct {
	sig   ctrlSignal
	value Value
}

func NewRuntime(prog *Program, opts *Options, argv []string, stdin io.Reader, stdout, stderr io.Writer) *Runtime {
	rt := &Runtime{
		gem:      NewGem(),
		gc:       NewGC(),
		opts:     opts,
		strCache: newStrCache(),
		prog:     prog,
		argv:     argv,
		in:       stdin,
		out:      stdout,
		err:      stderr,
		files:    map[string]*ioStream{},
		pipes:    map[string]*ioStream{},
		inFiles:  map[string]*ioStream{},
		inPipes:  map[string]*ioStream{},
		modules:  NewModuleRegistry(opts),
	}
	rt.globals = make([]Value, len(prog.Global.Names))
	for i := range rt.globals {
		rt.globals[i] = Nil
	}
	rt.rng = newRNGState(1)
	rt.rec = NewRecord(rt)
	rt.initStaticGlobals()
	return rt
}

// staticGlobalIndex finds NR/FS/... slots from the global table built
// by the parser (spec.md §3.3's static-globals list). initStaticGlobals
// appends a slot for every static global the program never names, so
// each of them always has one.
func (rt *Runtime) staticGlobalIndex(name string) (int, bool) {
	i, ok := rt.prog.Global.Index[name]
	return i, ok
}

func (rt *Runtime) initStaticGlobals() {
	defaults := map[string]Value{
		"FS":           rt.NewString(" "),
		"OFS":          rt.NewString(" "),
		"RS":           rt.NewString("\n"),
		"ORS":          rt.NewString("\n"),
		"SUBSEP":       rt.NewString("\x1c"),
		"CONVFMT":      rt.NewString("%.6g"),
		"OFMT":         rt.NewString("%.6g"),
		"NR":           Int(0),
		"NF":           Int(0),
		"FNR":          Int(0),
		"FILENAME":     EmptyString,
		"OFILENAME":    EmptyString,
		"RSTART":       Int(0),
		"RLENGTH":      Int(-1),
		"SCRIPTNAME":   rt.NewString(rt.opts.GetString("runtime.entry")),
		"NUMSTRDETECT": boolToInt(rt.opts.GetBool("dialect.numstrdetect")),
		"IGNORECASE":   Int(0),
		"STRIPRECSPC":  boolToInt(rt.opts.GetBool("dialect.striprecspc")),
		"STRIPSTRSPC":  boolToInt(rt.opts.GetBool("dialect.stripstrspc")),
	}
	for name, v := range defaults {
		i := rt.prog.Global.Add(name)
		for len(rt.globals) <= i {
			rt.globals = append(rt.globals, Nil)
		}
		rt.globals[i] = v
	}
}

func boolToInt(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func (rt *Runtime) getGlobalByName(name string) Value {
	if i, ok := rt.staticGlobalIndex(name); ok {
		return rt.globals[i]
	}
	return Nil
}

func (rt *Runtime) setGlobalByName(name string, v Value) {
	if i, ok := rt.staticGlobalIndex(name); ok {
		rt.globals[i] = v
	}
}

// SetGlobal assigns a numeric-string value to a top-level global by
// name, for embedders that need to seed variables before Run (the
// `-v name=value` command-line convention). A non-static name the
// program never references is a silent no-op, since no slot was ever
// allocated for it.
func (rt *Runtime) SetGlobal(name, value string) {
	rt.setGlobalByName(name, rt.NewNumericString(value))
}

func (rt *Runtime) convfmt() string {
	if s, ok := rt.getGlobalByName("CONVFMT").(*Str); ok {
		return s.data
	}
	return "%.6g"
}

func (rt *Runtime) ofmt() string {
	if s, ok := rt.getGlobalByName("OFMT").(*Str); ok {
		return s.data
	}
	return "%.6g"
}

// ---- top-level driver: BEGIN / main loop / END (spec.md §3.2) ----

func (rt *Runtime) Run() (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			if u, ok := r.(ctrlUnwind); ok && u.sig == ctrlAbort {
				code = 1
				err = fmt.Errorf("aborted: %s", ToStr(rt, u.value))
				return
			}
			panic(r)
		}
	}()

	for _, b := range rt.prog.Begins {
		if rt.runTop(b) {
			return rt.finishExit()
		}
	}

	if len(rt.prog.Chains) > 0 || len(rt.prog.Ends) > 0 {
		if rt.mainLoop() {
			return rt.finishExit()
		}
	}

	return rt.finishExit()
}

func (rt *Runtime) finishExit() (int, error) {
	for _, b := range rt.prog.Ends {
		if rt.runTop(b) {
			break
		}
	}
	rt.FlushAll()
	return rt.exitCode, nil
}

// runTop executes a top-level block, catching EXIT (which stops
// further top-level blocks of the *current* phase but still runs END,
// per spec.md §3.2) and reports whether an exit is in flight.
func (rt *Runtime) runTop(b *BlockStmt) (exited bool) {
	defer func() {
		if r := recover(); r != nil {
			u, ok := r.(ctrlUnwind)
			if !ok {
				panic(r)
			}
			switch u.sig {
			case ctrlExit:
				exited = true
				rt.exiting = true
			default:
				panic(r)
			}
		}
	}()
	rt.execBlock(b)
	return false
}

func (rt *Runtime) mainLoop() bool {
	for {
		_, ok := rt.rec.NextRecord()
		if !ok {
			return false
		}
		if rt.runChains() {
			return true
		}
	}
}

func (rt *Runtime) runChains() (exited bool) {
	defer func() {
		if r := recover(); r != nil {
			u, ok := r.(ctrlUnwind)
			if !ok {
				panic(r)
			}
			switch u.sig {
			case ctrlExit:
				exited = true
			case ctrlNext:
				// fall through to next record
			case ctrlNextFile, ctrlNextOFile:
				rt.rec.SkipToNextFile(u.sig == ctrlNextOFile)
			default:
				panic(r)
			}
		}
	}()
	for _, ch := range rt.prog.Chains {
		if rt.chainMatches(ch) {
			if ch.Action != nil {
				rt.execBlock(ch.Action)
			} else {
				rt.printRecord()
			}
		}
	}
	return false
}

func (rt *Runtime) chainMatches(ch *Chain) bool {
	if ch.Pattern == nil {
		return true
	}
	if ch.Range.End != nil {
		if !ch.Range.Active {
			if rt.eval(ch.Pattern).Bool() {
				ch.Range.Active = true
				if rt.eval(ch.Range.End).Bool() {
					ch.Range.Active = false
				}
				return true
			}
			return false
		}
		if rt.eval(ch.Range.End).Bool() {
			ch.Range.Active = false
		}
		return true
	}
	return rt.eval(ch.Pattern).Bool()
}

func (rt *Runtime) printRecord() {
	fmt.Fprint(rt.out, rt.rec.Field(0), rt.orsStr())
}

func (rt *Runtime) orsStr() string {
	if s, ok := rt.getGlobalByName("ORS").(*Str); ok {
		return s.data
	}
	return "\n"
}

// ---- statements ----

func (rt *Runtime) execBlock(b *BlockStmt) {
	for _, s := range b.Stmts {
		rt.exec(s)
	}
}

func (rt *Runtime) exec(s Stmt) {
	switch n := s.(type) {
	case *BlockStmt:
		rt.execBlock(n)
	case *ExprStmt:
		if n.X != nil {
			rt.eval(n.X)
		}
	case *IfStmt:
		if rt.eval(n.Cond).Bool() {
			rt.exec(n.Then)
		} else if n.Else != nil {
			rt.exec(n.Else)
		}
	case *WhileStmt:
		rt.execLoop(func() bool { return rt.eval(n.Cond).Bool() }, nil, n.Body)
	case *DoWhileStmt:
		first := true
		rt.execLoop(func() bool {
			if first {
				first = false
				return true
			}
			return rt.eval(n.Cond).Bool()
		}, nil, n.Body)
	case *ForStmt:
		if n.Init != nil {
			rt.exec(n.Init)
		}
		cond := func() bool {
			if n.Cond == nil {
				return true
			}
			return rt.eval(n.Cond).Bool()
		}
		var post func()
		if n.Post != nil {
			post = func() { rt.exec(n.Post) }
		}
		rt.execLoop(cond, post, n.Body)
	case *ForInStmt:
		rt.execForIn(n)
	case *SwitchStmt:
		rt.execSwitch(n)
	case *BreakStmt:
		panic(ctrlUnwind{sig: ctrlBreak})
	case *ContinueStmt:
		panic(ctrlUnwind{sig: ctrlContinue})
	case *NextStmt:
		panic(ctrlUnwind{sig: ctrlNext})
	case *NextFileStmt:
		panic(ctrlUnwind{sig: ctrlNextFile})
	case *NextOFileStmt:
		panic(ctrlUnwind{sig: ctrlNextOFile})
	case *ReturnStmt:
		var v Value = Nil
		if n.Value != nil {
			v = rt.eval(n.Value)
		}
		panic(ctrlUnwind{sig: ctrlReturn, value: v})
	case *ExitStmt:
		if n.Value != nil {
			rt.exitCode = int(ToInt(rt.eval(n.Value), true))
		}
		panic(ctrlUnwind{sig: ctrlExit})
	case *AbortStmt:
		var v Value = Nil
		if n.Value != nil {
			v = rt.eval(n.Value)
		}
		panic(ctrlUnwind{sig: ctrlAbort, value: v})
	case *DeleteStmt:
		rt.execDelete(n)
	case *ResetStmt:
		rt.execReset(n)
	case *PrintStmt:
		rt.execPrint(n)
	default:
		panic(fmt.Sprintf("hawk: unhandled statement %T", s))
	}
}

// execLoop runs a generic counted/conditioned loop, translating
// break/continue signals caught at this level (spec.md §4.2 control
// statements).
func (rt *Runtime) execLoop(cond func() bool, post func(), body Stmt) {
	for cond() {
		if rt.runLoopBody(body) {
			break
		}
		if post != nil {
			post()
		}
	}
}

// runLoopBody executes body once, reporting whether the loop should
// stop (a break occurred). continue simply lets this call return
// normally so the caller's post/cond runs next.
func (rt *Runtime) runLoopBody(body Stmt) (brk bool) {
	defer func() {
		if r := recover(); r != nil {
			u, ok := r.(ctrlUnwind)
			if !ok {
				panic(r)
			}
			switch u.sig {
			case ctrlBreak:
				brk = true
			case ctrlContinue:
				// normal return
			default:
				panic(r)
			}
		}
	}()
	rt.exec(body)
	return false
}

func (rt *Runtime) execForIn(n *ForInStmt) {
	arr := rt.resolveArray(n.Array)
	var keys []string
	switch a := arr.(type) {
	case *MapVal:
		keys = append([]string(nil), a.Keys()...)
	case *ArrayVal:
		for i := 1; i <= a.Len(); i++ {
			if _, ok := a.Get(i); ok {
				keys = append(keys, fmt.Sprintf("%d", i))
			}
		}
	}
	for _, k := range keys {
		rt.assignVar(n.Var, rt.NewNumericString(k))
		if rt.runLoopBody(n.Body) {
			break
		}
	}
}

func (rt *Runtime) execSwitch(n *SwitchStmt) {
	tag := rt.eval(n.Tag)
	defer func() {
		if r := recover(); r != nil {
			if u, ok := r.(ctrlUnwind); ok && u.sig == ctrlBreak {
				return
			}
			panic(r)
		}
	}()
	var defaultClause *CaseClause
	matched := -1
	for i := range n.Cases {
		c := &n.Cases[i]
		if len(c.Values) == 0 {
			defaultClause = c
			continue
		}
		for _, ve := range c.Values {
			if valuesEqual(rt, tag, rt.eval(ve)) {
				matched = i
				break
			}
		}
		if matched >= 0 {
			break
		}
	}
	run := func(body []Stmt) {
		for _, s := range body {
			rt.exec(s)
		}
	}
	if matched >= 0 {
		run(n.Cases[matched].Body)
		return
	}
	if defaultClause != nil {
		run(defaultClause.Body)
	}
}

func (rt *Runtime) execDelete(n *DeleteStmt) {
	arr := rt.resolveArray(n.Array)
	if n.Index == nil {
		switch a := arr.(type) {
		case *MapVal:
			for _, k := range append([]string(nil), a.Keys()...) {
				a.Delete(k)
			}
		case *ArrayVal:
			for i := 1; i <= a.Len(); i++ {
				a.Delete(i)
			}
		}
		return
	}
	key := rt.subscriptKey(n.Index)
	switch a := arr.(type) {
	case *MapVal:
		a.Delete(key)
	case *ArrayVal:
		if idx, ok := parseIntIndex(key); ok {
			a.Delete(idx)
		}
	}
}

func (rt *Runtime) execReset(n *ResetStmt) {
	rt.assignVar(n.Target, Nil)
}

func (rt *Runtime) execPrint(n *PrintStmt) {
	var w io.Writer = rt.out
	if n.Redir != RedirNone {
		target := ToStr(rt, rt.eval(n.Target))
		w = rt.openOutput(target, n.Redir)
	}
	if n.Printf {
		if len(n.Args) == 0 {
			return
		}
		format := ToStr(rt, rt.eval(n.Args[0]))
		args := make([]Value, len(n.Args)-1)
		for i, a := range n.Args[1:] {
			args[i] = rt.eval(a)
		}
		fmt.Fprint(w, sprintf(rt, format, args))
		return
	}
	parts := make([]string, len(n.Args))
	if len(n.Args) == 0 {
		parts = []string{rt.rec.Field(0)}
	} else {
		for i, a := range n.Args {
			parts[i] = toOutputStr(rt, rt.eval(a))
		}
	}
	fmt.Fprint(w, strings.Join(parts, rt.ofsStr()), rt.orsStr())
}

func (rt *Runtime) ofsStr() string {
	if s, ok := rt.getGlobalByName("OFS").(*Str); ok {
		return s.data
	}
	return " "
}

func toOutputStr(rt *Runtime, v Value) string {
	if f, ok := v.(Float); ok {
		return FormatNumber(float64(f), rt.ofmt())
	}
	return ToStr(rt, v)
}

// ---- array/variable resolution ----

func (rt *Runtime) resolveArray(ref *VarRef) Value {
	v := rt.readVar(ref)
	if v == Nil {
		// implicit creation on first subscripted use, spec.md §4.3.
		a := NewMap(rt.gc)
		rt.assignVar(ref, a)
		return a
	}
	return v
}

func (rt *Runtime) subscriptKey(idx []Expr) string {
	if len(idx) == 1 {
		return ToStr(rt, rt.eval(idx[0]))
	}
	subsep := ToStr(rt, rt.getGlobalByName("SUBSEP"))
	parts := make([]string, len(idx))
	for i, e := range idx {
		parts[i] = ToStr(rt, rt.eval(e))
	}
	return strings.Join(parts, subsep)
}

func parseIntIndex(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, len(s) > 0
}

func (rt *Runtime) readVar(ref *VarRef) Value {
	var v Value
	switch ref.Scope {
	case ScopeGlobal:
		v = rt.globals[ref.Index]
	case ScopeLocal, ScopeParam:
		v = rt.curFrame().locals[ref.Index]
	default:
		return Nil
	}
	// A by-reference parameter's slot holds a *RefVal pointing at the
	// caller's binding, not the value itself (spec.md §3.1: a Reference
	// never directly points at another Reference, so every reader must
	// resolve it here rather than handing the wrapper to arithmetic,
	// boolean, or comparison contexts).
	if rv, ok := v.(*RefVal); ok {
		return rt.loadRef(rv)
	}
	return v
}

func (rt *Runtime) assignVar(ref *VarRef, v Value) {
	switch ref.Scope {
	case ScopeGlobal:
		old := rt.globals[ref.Index]
		IncRefVal(v)
		rt.globals[ref.Index] = v
		DecRefVal(old)
	case ScopeLocal, ScopeParam:
		fr := rt.curFrame()
		old := fr.locals[ref.Index]
		if fr.refArgs != nil && ref.Index < len(fr.refArgs) && fr.refArgs[ref.Index] {
			if rv, ok := old.(*RefVal); ok {
				rt.storeRef(rv, v)
				return
			}
		}
		IncRefVal(v)
		fr.locals[ref.Index] = v
		DecRefVal(old)
	}
}

func (rt *Runtime) curFrame() *frame {
	return rt.frames[len(rt.frames)-1]
}

// curCallArgs returns the enclosing user function's actual argument
// vector for @argc/@argv (spec.md §4.5), or nil at top level where
// there is no enclosing call.
func (rt *Runtime) curCallArgs() []Value {
	if len(rt.frames) == 0 {
		return nil
	}
	return rt.curFrame().callArgs
}

// storeRef writes through a pass-by-reference binding (spec.md §4.2
// "pass-by-reference via &x").
func (rt *Runtime) storeRef(r *RefVal, v Value) {
	switch r.RKind {
	case RefGlobal:
		if r.Slot < 0 {
			return // throwaway binding, see refOf
		}
		old := rt.globals[r.Slot]
		IncRefVal(v)
		rt.globals[r.Slot] = v
		DecRefVal(old)
	case RefLocal:
		fr := rt.frames[len(rt.frames)-2]
		old := fr.locals[r.Slot]
		IncRefVal(v)
		fr.locals[r.Slot] = v
		DecRefVal(old)
	case RefMapElem:
		r.Map.Set(r.Key, v)
	case RefArrayElem:
		r.Array.Set(r.Index, v)
	case RefPositional:
		rt.rec.SetField(r.Slot, ToStr(rt, v))
	}
}

func (rt *Runtime) loadRef(r *RefVal) Value {
	switch r.RKind {
	case RefGlobal:
		if r.Slot < 0 {
			return Nil
		}
		return rt.globals[r.Slot]
	case RefLocal:
		fr := rt.frames[len(rt.frames)-2]
		return fr.locals[r.Slot]
	case RefMapElem:
		v, _ := r.Map.Get(r.Key)
		if v == nil {
			return Nil
		}
		return v
	case RefArrayElem:
		v, _ := r.Array.Get(r.Index)
		if v == nil {
			return Nil
		}
		return v
	case RefPositional:
		return rt.NewNumericString(rt.rec.Field(r.Slot))
	}
	return Nil
}

// ---- expressions ----

func (rt *Runtime) eval(e Expr) Value {
	switch n := e.(type) {
	case *IntLit:
		return Int(n.Val)
	case *FloatLit:
		return Float(n.Val)
	case *StrLit:
		return rt.NewString(n.Val)
	case *ByteStrLit:
		return NewByteString(n.Val)
	case *CharLit:
		return Char(n.Val)
	case *ByteCharLit:
		return ByteChar(n.Val)
	case *nilLitWrap:
		return Nil
	case *RegexLit:
		re, err := CompileRegex(n.Source, rt.gem, n.baseNode.span.Start)
		if err != nil {
			panic(err)
		}
		return re
	case *VarRef:
		return rt.evalVarRef(n)
	case *FieldExpr:
		idx := 0
		if n.Index != nil {
			idx = int(ToInt(rt.eval(n.Index), true))
		}
		return rt.NewNumericString(rt.rec.Field(idx))
	case *IndexExpr:
		return rt.evalIndex(n)
	case *ArgvIndexExpr:
		args := rt.curCallArgs()
		i := int(ToInt(rt.eval(n.Index), true))
		if i >= 1 && i <= len(args) {
			return args[i-1]
		}
		return Nil
	case *ArgcExpr:
		return Int(int64(len(rt.curCallArgs())))
	case *ArgvExpr:
		args := rt.curCallArgs()
		arr := NewArray(rt.gc)
		for i, v := range args {
			arr.Set(i+1, v)
		}
		return arr
	case *BinaryExpr:
		return rt.evalBinary(n)
	case *UnaryExpr:
		return rt.evalUnary(n)
	case *TernaryExpr:
		if rt.eval(n.Cond).Bool() {
			return rt.eval(n.Then)
		}
		return rt.eval(n.Else)
	case *AssignExpr:
		return rt.evalAssign(n)
	case *ConcatExpr:
		var sb strings.Builder
		for _, p := range n.Parts {
			sb.WriteString(ToStr(rt, rt.eval(p)))
		}
		return rt.NewString(sb.String())
	case *GroupExpr:
		var last Value = Nil
		for _, it := range n.Items {
			last = rt.eval(it)
		}
		return last
	case *InExpr:
		return rt.evalIn(n)
	case *MatchExpr:
		return rt.evalMatch(n)
	case *CallExpr:
		return rt.evalCall(n)
	case *GetlineExpr:
		return rt.evalGetline(n)
	default:
		panic(fmt.Sprintf("hawk: unhandled expression %T", e))
	}
}

func (rt *Runtime) evalVarRef(n *VarRef) Value {
	if n.Scope == ScopeNamed {
		return rt.modules.LookupNamed(n.Name)
	}
	return rt.readVar(n)
}

func (rt *Runtime) evalIndex(n *IndexExpr) Value {
	arr := rt.resolveArray(n.Array)
	key := rt.subscriptKey(n.Index)
	switch a := arr.(type) {
	case *MapVal:
		if v, ok := a.Get(key); ok {
			return v
		}
		a.Set(key, Nil)
		return Nil
	case *ArrayVal:
		idx, ok := parseIntIndex(key)
		if !ok {
			return Nil
		}
		if v, ok := a.Get(idx); ok {
			return v
		}
		a.Set(idx, Nil)
		return Nil
	}
	return Nil
}

func (rt *Runtime) evalIn(n *InExpr) Value {
	arr := rt.resolveArray(n.Array)
	key := rt.subscriptKey(n.Keys)
	switch a := arr.(type) {
	case *MapVal:
		_, ok := a.Get(key)
		return boolVal(ok)
	case *ArrayVal:
		idx, ok := parseIntIndex(key)
		if !ok {
			return boolVal(false)
		}
		_, ok2 := a.Get(idx)
		return boolVal(ok2)
	}
	return boolVal(false)
}

func boolVal(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func (rt *Runtime) evalMatch(n *MatchExpr) Value {
	s := ToStr(rt, rt.eval(n.Left))
	re := rt.regexOf(n.Right)
	matched := re.Compiled.MatchString(s)
	if n.Negate {
		matched = !matched
	}
	return boolVal(matched)
}

func (rt *Runtime) regexOf(e Expr) *RegexVal {
	v := rt.eval(e)
	if re, ok := v.(*RegexVal); ok {
		return re
	}
	re, err := CompileRegex(ToStr(rt, v), rt.gem, Location{})
	if err != nil {
		panic(err)
	}
	return re
}

func (rt *Runtime) evalUnary(n *UnaryExpr) Value {
	switch n.Op {
	case TokNot:
		return boolVal(!rt.eval(n.Operand).Bool())
	case TokMinus:
		return negateNum(ToFloat(rt.eval(n.Operand), true))
	case TokPlus:
		return Float(ToFloat(rt.eval(n.Operand), true))
	case TokTilde:
		return Int(^ToInt(rt.eval(n.Operand), true))
	case TokIncr, TokDecr:
		ref, ok := n.Operand.(*VarRef)
		delta := int64(1)
		if n.Op == TokDecr {
			delta = -1
		}
		if !ok {
			// $k++ / arr[k]++ etc: read-modify-write through eval/assign.
			old := ToFloat(rt.eval(n.Operand), true)
			nv := numFromFloat(old + float64(delta))
			rt.assignExprTo(n.Operand, nv)
			if n.Postfix {
				return numFromFloat(old)
			}
			return nv
		}
		old := ToFloat(rt.readVar(ref), true)
		nv := numFromFloat(old + float64(delta))
		rt.assignVar(ref, nv)
		if n.Postfix {
			return numFromFloat(old)
		}
		return nv
	}
	panic("hawk: unhandled unary operator")
}

func negateNum(f float64) Value {
	if f == math.Trunc(f) {
		return Int(int64(-f))
	}
	return Float(-f)
}

func numFromFloat(f float64) Value {
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return Int(int64(f))
	}
	return Float(f)
}

// assignExprTo handles `++`/`--`/op-assign targets that aren't a bare
// VarRef: `$k`, `arr[i]`.
func (rt *Runtime) assignExprTo(target Expr, v Value) {
	switch t := target.(type) {
	case *VarRef:
		rt.assignVar(t, v)
	case *FieldExpr:
		idx := 0
		if t.Index != nil {
			idx = int(ToInt(rt.eval(t.Index), true))
		}
		rt.rec.SetField(idx, ToStr(rt, v))
	case *IndexExpr:
		arr := rt.resolveArray(t.Array)
		key := rt.subscriptKey(t.Index)
		switch a := arr.(type) {
		case *MapVal:
			a.Set(key, v)
		case *ArrayVal:
			if idx, ok := parseIntIndex(key); ok {
				a.Set(idx, v)
			}
		}
	default:
		panic("hawk: invalid assignment target")
	}
}

func (rt *Runtime) evalAssign(n *AssignExpr) Value {
	if n.Op == TokAssign {
		v := rt.eval(n.Value)
		rt.assignExprTo(n.Target, v)
		return v
	}
	cur := rt.eval(n.Target)
	rhs := rt.eval(n.Value)
	var result Value
	switch n.Op {
	case TokAddAssign:
		result = arith(cur, rhs, '+')
	case TokSubAssign:
		result = arith(cur, rhs, '-')
	case TokMulAssign:
		result = arith(cur, rhs, '*')
	case TokDivAssign:
		result = Float(ToFloat(cur, true) / ToFloat(rhs, true))
	case TokModAssign:
		result = Float(math.Mod(ToFloat(cur, true), ToFloat(rhs, true)))
	case TokIDivAssign:
		result = Int(safeIDiv(ToInt(cur, true), ToInt(rhs, true)))
	case TokPowAssign:
		result = Float(math.Pow(ToFloat(cur, true), ToFloat(rhs, true)))
	default:
		panic("hawk: unhandled compound assignment operator")
	}
	rt.assignExprTo(n.Target, result)
	return result
}

func safeIDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func arith(a, b Value, op byte) Value {
	fa, fb := ToFloat(a, true), ToFloat(b, true)
	var r float64
	switch op {
	case '+':
		r = fa + fb
	case '-':
		r = fa - fb
	case '*':
		r = fa * fb
	}
	return numFromFloat(r)
}

func (rt *Runtime) evalBinary(n *BinaryExpr) Value {
	switch n.Op {
	case TokOr:
		if rt.eval(n.Left).Bool() {
			return Int(1)
		}
		return boolVal(rt.eval(n.Right).Bool())
	case TokAnd:
		if !rt.eval(n.Left).Bool() {
			return Int(0)
		}
		return boolVal(rt.eval(n.Right).Bool())
	}
	lv := rt.eval(n.Left)
	rv := rt.eval(n.Right)
	switch n.Op {
	case TokPlus:
		return arith(lv, rv, '+')
	case TokMinus:
		return arith(lv, rv, '-')
	case TokStar:
		return arith(lv, rv, '*')
	case TokSlash:
		return Float(ToFloat(lv, true) / ToFloat(rv, true))
	case TokPercent:
		return Float(math.Mod(ToFloat(lv, true), ToFloat(rv, true)))
	case TokIDiv:
		return Int(safeIDiv(ToInt(lv, true), ToInt(rv, true)))
	case TokPow:
		return numFromFloat(math.Pow(ToFloat(lv, true), ToFloat(rv, true)))
	case TokBitAnd:
		return Int(ToInt(lv, true) & ToInt(rv, true))
	case TokBitOr:
		return Int(ToInt(lv, true) | ToInt(rv, true))
	case TokBitXor:
		return Int(ToInt(lv, true) ^ ToInt(rv, true))
	case TokLShift:
		return Int(ToInt(lv, true) << uint(ToInt(rv, true)))
	case TokRShift:
		return Int(ToInt(lv, true) >> uint(ToInt(rv, true)))
	case TokEq:
		return boolVal(valuesEqual(rt, lv, rv))
	case TokNe:
		return boolVal(!valuesEqual(rt, lv, rv))
	case TokStrictEq:
		return boolVal(lv.Kind() == rv.Kind() && valuesEqual(rt, lv, rv))
	case TokStrictNe:
		return boolVal(!(lv.Kind() == rv.Kind() && valuesEqual(rt, lv, rv)))
	case TokLt:
		return boolVal(compareValues(rt, lv, rv) < 0)
	case TokLe:
		return boolVal(compareValues(rt, lv, rv) <= 0)
	case TokGt:
		return boolVal(compareValues(rt, lv, rv) > 0)
	case TokGe:
		return boolVal(compareValues(rt, lv, rv) >= 0)
	}
	panic("hawk: unhandled binary operator")
}

// valuesEqual/compareValues implement spec.md §4.5's comparison rules:
// numeric compare when both sides are numbers or numeric-strings,
// string compare otherwise.
func bothNumericish(a, b Value) bool {
	numericKind := func(v Value) bool {
		switch x := v.(type) {
		case Int, Float, Char, ByteChar:
			return true
		case *Str:
			return x.numeric
		case *ByteStr:
			return x.numeric
		}
		return v == Nil
	}
	return numericKind(a) && numericKind(b)
}

func compareValues(rt *Runtime, a, b Value) int {
	if bothNumericish(a, b) {
		fa, fb := ToFloat(a, true), ToFloat(b, true)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	sa, sb := ToStr(rt, a), ToStr(rt, b)
	return strings.Compare(sa, sb)
}

func valuesEqual(rt *Runtime, a, b Value) bool {
	return compareValues(rt, a, b) == 0
}

// ToStr implements the string-context coercion (spec.md §4.5), honoring
// CONVFMT for floats.
func ToStr(rt *Runtime, v Value) string {
	switch x := v.(type) {
	case nilValue:
		return ""
	case Int:
		return fmt.Sprintf("%d", int64(x))
	case Float:
		return FormatNumber(float64(x), rt.convfmt())
	case Char:
		return string(rune(x))
	case ByteChar:
		return string([]byte{byte(x)})
	case *Str:
		return x.data
	case *ByteStr:
		return string(x.data)
	case *RegexVal:
		return x.Source
	case *RefVal:
		return ToStr(rt, rt.loadRef(x))
	default:
		return ""
	}
}

// ---- function calls ----

func (rt *Runtime) evalCall(n *CallExpr) Value {
	if n.Module != "" {
		return rt.modules.Call(rt, n.Module, n.Name, rt.evalArgs(n.Args))
	}
	if n.Func != nil {
		return rt.callUser(n.Func, n)
	}
	if fn, ok := rt.prog.Funcs[n.Name]; ok {
		return rt.callUser(fn, n)
	}
	if bi, ok := builtins[n.Name]; ok {
		return bi(rt, n)
	}
	panic(rt.gem.Errorf(ErrUndefined, n.baseNode.span.Start, "call to undefined function `%s`", n.Name))
}

func (rt *Runtime) evalArgs(args []Expr) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = rt.eval(a)
	}
	return out
}

func (rt *Runtime) callUser(fn *FuncDef, call *CallExpr) (result Value) {
	if len(rt.frames) >= rt.stackLimit() {
		panic(rt.gem.Errorf(ErrStackOverflow, call.baseNode.span.Start, "call stack depth exceeded"))
	}
	locals := make([]Value, fn.NumLocals)
	refArgs := make([]bool, fn.NumLocals)
	for i := range locals {
		locals[i] = Nil
	}
	callArgs := make([]Value, len(call.Args))
	for i, p := range fn.Params {
		refArgs[i] = p.ByRef
		if i >= len(call.Args) {
			continue
		}
		if p.ByRef {
			locals[i] = rt.refOf(call.Args[i])
			callArgs[i] = rt.eval(call.Args[i])
		} else {
			v := rt.eval(call.Args[i])
			IncRefVal(v)
			locals[i] = v
			callArgs[i] = v
		}
	}
	// Variadic tail: extra call arguments beyond the declared fixed
	// params are only reachable through @argc/@argv, never bound to a
	// local slot.
	for i := len(fn.Params); i < len(call.Args); i++ {
		callArgs[i] = rt.eval(call.Args[i])
	}
	fr := &frame{fn: fn, locals: locals, refArgs: refArgs, callArgs: callArgs}
	rt.frames = append(rt.frames, fr)
	defer func() {
		rt.frames = rt.frames[:len(rt.frames)-1]
		for i, v := range locals {
			if !refArgs[i] {
				DecRefVal(v)
			}
		}
		if r := recover(); r != nil {
			u, ok := r.(ctrlUnwind)
			if !ok || u.sig != ctrlReturn {
				panic(r)
			}
			result = u.value
		}
	}()
	rt.execBlock(fn.Body)
	return Nil
}

func (rt *Runtime) stackLimit() int {
	if n := rt.opts.GetInt("runtime.stack_limit"); n > 0 {
		return n
	}
	return 1 << 20
}

// refOf builds a RefVal pointing at an lvalue expression, used to bind
// a by-reference parameter (spec.md §4.2, §9's (kind,index) design).
func (rt *Runtime) refOf(e Expr) *RefVal {
	switch t := e.(type) {
	case *VarRef:
		switch t.Scope {
		case ScopeGlobal:
			return &RefVal{RKind: RefGlobal, Slot: t.Index}
		default:
			// If this local already holds a by-ref binding (forwarding
			// an &-param to another &-param), chase through to its
			// target rather than wrapping it again: a Reference never
			// directly points at another Reference (spec.md §3.1).
			if rv, ok := rt.curFrame().locals[t.Index].(*RefVal); ok {
				return rv
			}
			return &RefVal{RKind: RefLocal, Slot: t.Index}
		}
	case *FieldExpr:
		idx := 0
		if t.Index != nil {
			idx = int(ToInt(rt.eval(t.Index), true))
		}
		return &RefVal{RKind: RefPositional, Slot: idx}
	case *IndexExpr:
		arr := rt.resolveArray(t.Array)
		key := rt.subscriptKey(t.Index)
		switch a := arr.(type) {
		case *MapVal:
			return &RefVal{RKind: RefMapElem, Map: a, Key: key}
		case *ArrayVal:
			idx, _ := parseIntIndex(key)
			return &RefVal{RKind: RefArrayElem, Array: a, Index: idx}
		}
	}
	// Not an lvalue (e.g. `f(&(1+1))`): bind a throwaway global slot
	// so writes inside the callee don't panic but also don't alias
	// anything the caller can observe.
	rt.eval(e)
	return &RefVal{RKind: RefGlobal, Slot: -1}
}

// ---- getline (spec.md §4.5) ----

func (rt *Runtime) evalGetline(n *GetlineExpr) Value {
	var line string
	var ok bool
	switch {
	case n.Command != nil:
		cmd := ToStr(rt, rt.eval(n.Command))
		line, ok = rt.getlineFromCommand(cmd, n.Bidirectional)
	case n.File != nil:
		file := ToStr(rt, rt.eval(n.File))
		line, ok = rt.getlineFromFile(file)
	default:
		line, ok = rt.rec.NextRecord()
	}
	if !ok {
		return Int(0)
	}
	if n.Target != nil {
		rt.assignExprTo(n.Target, rt.NewNumericString(line))
	} else {
		rt.rec.SetField(0, line)
	}
	return Int(1)
}

