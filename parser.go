package hawk

import "fmt"

// scope tracks the identifier tables active while parsing one
// function body or the top-level program (spec.md §3.3 "scope
// resolution happens at parse time, not at run time").
type scope struct {
	locals map[string]int
	params map[string]int
	byRef  map[string]bool
}

// Parser builds a Program from Lexer tokens via recursive descent, with
// one parse function per expression precedence level (spec.md §4.2).
type Parser struct {
	gem    *Gem
	opts   *Options
	lx     *Lexer
	globs  *GlobalTable
	funcs  map[string]*FuncDef
	cur    Token
	peeked *Token
	fnScope *scope
	expectOperand bool
	includeResolver IncludeResolver

	// noGT suppresses `>`/`>>` as relational/shift operators while
	// parsing a print/printf argument list, where a bare `>` instead
	// introduces the output redirection target (spec.md §4.2).
	noGT bool
}

// SetIncludeResolver installs the callback used to resolve @include
// and @include_once targets to file content (spec.md §4.2). ParseFile
// installs a filesystem-backed resolver; NewParser installs none.
func (p *Parser) SetIncludeResolver(r IncludeResolver) { p.includeResolver = r }

func NewParser(gem *Gem, opts *Options, lx *Lexer) *Parser {
	p := &Parser{gem: gem, opts: opts, lx: lx, globs: NewGlobalTable(), funcs: map[string]*FuncDef{}}
	p.expectOperand = true
	p.advance()
	return p
}

func (p *Parser) advance() {
	if p.peeked != nil {
		p.cur = *p.peeked
		p.peeked = nil
		return
	}
	tok, err := p.lx.Next(p.expectOperand)
	if err != nil {
		panic(err)
	}
	p.cur = tok
}

func (p *Parser) peek() Token {
	if p.peeked == nil {
		tok, err := p.lx.Next(true)
		if err != nil {
			panic(err)
		}
		p.peeked = &tok
	}
	return *p.peeked
}

func (p *Parser) errorf(format string, args ...interface{}) {
	panic(p.gem.Errorf(ErrSyntax, p.cur.Loc, format, args...))
}

func (p *Parser) expect(k TokKind) Token {
	if p.cur.Kind != k {
		p.errorf("unexpected token `%s`, expected kind %d", p.cur.Text, k)
	}
	t := p.cur
	p.afterOperator()
	p.advance()
	return t
}

// afterOperator / afterOperand toggle the lexer's regex-vs-division
// disambiguation for the *next* token (spec.md §4.1).
func (p *Parser) afterOperator() { p.expectOperand = true }
func (p *Parser) afterOperand()  { p.expectOperand = false }

func (p *Parser) skipNewlines() {
	for p.cur.Kind == TokNewline || p.cur.Kind == TokSemi {
		p.afterOperator()
		p.advance()
	}
}

func (p *Parser) skipOptNewlines() {
	for p.cur.Kind == TokNewline {
		p.afterOperator()
		p.advance()
	}
}

// ParseProgram parses an entire source unit, handling @include(_once)
// transparently (the lexer auto-pops finished sources so this loop
// just keeps consuming top-level items until true EOF).
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{Funcs: p.funcs, Global: p.globs}
	defer func() {
		if r := recover(); r != nil {
			if ge, ok := r.(*GemError); ok {
				p.gem.SetError(ge)
				return
			}
			panic(r)
		}
	}()
	p.skipNewlines()
	for p.cur.Kind != TokEOF {
		p.parseTopLevelItem(prog)
		p.skipNewlines()
	}
	if err := p.gem.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

func (p *Parser) parseTopLevelItem(prog *Program) {
	switch p.cur.Kind {
	case TokAtInclude, TokAtIncludeOnce:
		p.parseInclude()
	case TokAtPragma:
		p.parsePragma()
	case TokAtGlobal:
		p.parseGlobalDecl()
	case TokBegin:
		p.advance()
		prog.Begins = append(prog.Begins, p.parseBlock())
	case TokEnd:
		p.advance()
		prog.Ends = append(prog.Ends, p.parseBlock())
	case TokFunction:
		fn := p.parseFuncDef()
		prog.Funcs[fn.Name] = fn
	default:
		prog.Chains = append(prog.Chains, p.parseChain())
	}
}

func (p *Parser) parseInclude() {
	once := p.cur.Kind == TokAtIncludeOnce
	p.afterOperand()
	p.advance()
	pathTok := p.expect(TokString)
	// A real embedding host resolves pathTok.Text against its search
	// path and supplies file content; the core only needs the content
	// and fingerprinting, so resolution is left to the embedder via
	// IncludeResolver (ParseFile in api.go installs a filesystem one).
	content, resolvedName, err := p.resolveInclude(pathTok.Text)
	if err != nil {
		panic(p.gem.Errorf(ErrIO, pathTok.Loc, "cannot include `%s`: %s", pathTok.Text, err))
	}
	fp := fingerprint(content)
	if once && p.lx.SeenOnce(fp) {
		return
	}
	if err := p.lx.PushSource(resolvedName, content); err != nil {
		panic(err)
	}
	p.advance()
}

// IncludeResolver loads the content of an @include target. The parser
// holds at most one; with none installed every include fails, and
// tests can install one that serves an in-memory fixture set.
type IncludeResolver func(path string) (content, resolvedName string, err error)

func (p *Parser) resolveInclude(path string) (string, string, error) {
	if p.includeResolver != nil {
		return p.includeResolver(path)
	}
	return "", "", fmt.Errorf("no include resolver configured")
}

func (p *Parser) parsePragma() {
	p.afterOperand()
	p.advance()
	name := p.expect(TokIdent).Text
	var val string
	if p.cur.Kind == TokString || p.cur.Kind == TokIdent {
		val = p.cur.Text
		p.advance()
	} else if p.cur.Kind == TokInt {
		val = fmt.Sprintf("%d", p.cur.IVal)
		p.advance()
	}
	applyPragma(p.opts, name, val)
}

func applyPragma(opts *Options, name, val string) {
	if name == "stack_limit" {
		var n int
		if _, err := fmt.Sscan(val, &n); err == nil {
			opts.SetInt("runtime.stack_limit", n)
		}
		return
	}
	key := "dialect." + name
	if _, ok := opts.HasBool(key); ok {
		opts.SetBool(key, val != "0" && val != "false" && val != "")
	}
}

func (p *Parser) parseGlobalDecl() {
	p.afterOperand()
	p.advance()
	for {
		name := p.expect(TokIdent).Text
		p.globs.Add(name)
		if p.cur.Kind != TokComma {
			break
		}
		p.afterOperator()
		p.advance()
	}
}

func (p *Parser) parseFuncDef() *FuncDef {
	start := p.cur.Loc
	p.afterOperand()
	p.advance()
	name := p.expect(TokIdent).Text
	p.expect(TokLParen)
	fn := &FuncDef{Name: name}
	sc := &scope{locals: map[string]int{}, params: map[string]int{}, byRef: map[string]bool{}}
	idx := 0
	for p.cur.Kind != TokRParen {
		byRef := false
		if p.cur.Kind == TokBitAnd {
			byRef = true
			p.afterOperator()
			p.advance()
		}
		if p.cur.Kind == TokEllipsis {
			fn.Variadic = true
			p.afterOperand()
			p.advance()
			break
		}
		pname := p.expect(TokIdent).Text
		fn.Params = append(fn.Params, Param{Name: pname, ByRef: byRef})
		sc.params[pname] = idx
		sc.byRef[pname] = byRef
		idx++
		if p.cur.Kind == TokComma {
			p.afterOperator()
			p.advance()
			p.skipOptNewlines()
		}
	}
	p.afterOperand()
	p.advance() // )
	p.fnScope = sc
	p.skipOptNewlines()
	fn.Body = p.parseBlock()
	fn.NumLocals = idx + len(sc.locals)
	fn.Span = NewSpan(start, p.cur.Loc)
	p.fnScope = nil
	return fn
}

func (p *Parser) parseChain() *Chain {
	ch := &Chain{}
	if p.cur.Kind != TokLBrace {
		ch.Pattern = p.parseExpr()
		if p.cur.Kind == TokComma {
			p.afterOperator()
			p.advance()
			p.skipOptNewlines()
			ch.Range.End = p.parseExpr()
		}
	}
	p.skipOptNewlines()
	if p.cur.Kind == TokLBrace {
		ch.Action = p.parseBlock()
	}
	return ch
}

// ---- statements ----

func (p *Parser) parseBlock() *BlockStmt {
	start := p.cur.Loc
	p.afterOperator()
	p.expect(TokLBrace)
	b := &BlockStmt{}
	p.skipNewlines()
	for p.cur.Kind != TokRBrace && p.cur.Kind != TokEOF {
		b.Stmts = append(b.Stmts, p.parseStmt())
		p.skipNewlines()
	}
	end := p.cur.Loc
	p.afterOperand()
	p.expect(TokRBrace)
	b.baseNode = baseNode{span: NewSpan(start, end)}
	return b
}

func (p *Parser) parseStmtOrBlock() Stmt {
	p.skipOptNewlines()
	if p.cur.Kind == TokLBrace {
		return p.parseBlock()
	}
	return p.parseStmt()
}

func (p *Parser) parseStmt() Stmt {
	start := p.cur.Loc
	switch p.cur.Kind {
	case TokLBrace:
		return p.parseBlock()
	case TokIf:
		return p.parseIf()
	case TokWhile:
		return p.parseWhile()
	case TokDo:
		return p.parseDoWhile()
	case TokFor:
		return p.parseFor()
	case TokSwitch:
		return p.parseSwitch()
	case TokBreak:
		p.afterOperand()
		p.advance()
		return &BreakStmt{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokContinue:
		p.afterOperand()
		p.advance()
		return &ContinueStmt{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokNext:
		p.afterOperand()
		p.advance()
		return &NextStmt{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokNextfile:
		p.afterOperand()
		p.advance()
		return &NextFileStmt{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokNextofile:
		p.afterOperand()
		p.advance()
		return &NextOFileStmt{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokReturn:
		p.afterOperator()
		p.advance()
		var v Expr
		if !p.atStmtEnd() {
			v = p.parseExpr()
		}
		return &ReturnStmt{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokExit:
		p.afterOperator()
		p.advance()
		var v Expr
		if !p.atStmtEnd() {
			v = p.parseExpr()
		}
		return &ExitStmt{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokAtAbort:
		p.afterOperator()
		p.advance()
		var v Expr
		if !p.atStmtEnd() {
			v = p.parseExpr()
		}
		return &AbortStmt{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokAtReset:
		p.afterOperator()
		p.advance()
		name := p.expect(TokIdent).Text
		return &ResetStmt{baseNode{NewSpan(start, p.cur.Loc)}, p.resolveVar(name, start)}
	case TokAtLocal:
		return p.parseLocalDecl()
	case TokDelete:
		return p.parseDelete()
	case TokPrint, TokPrintf:
		return p.parsePrint()
	case TokSemi:
		return &ExprStmt{baseNode{NewSpan(start, start)}, nil}
	default:
		e := p.parseExpr()
		return &ExprStmt{baseNode{NewSpan(start, p.cur.Loc)}, e}
	}
}

func (p *Parser) atStmtEnd() bool {
	switch p.cur.Kind {
	case TokSemi, TokNewline, TokRBrace, TokEOF:
		return true
	}
	return false
}

func (p *Parser) parseIf() Stmt {
	start := p.cur.Loc
	p.afterOperator()
	p.advance()
	p.expect(TokLParen)
	cond := p.parseExpr()
	p.afterOperand()
	p.expect(TokRParen)
	then := p.parseStmtOrBlock()
	var els Stmt
	save := p.cur
	_ = save
	p.skipOptTrailingNewlineBeforeElse()
	if p.cur.Kind == TokElse {
		p.afterOperator()
		p.advance()
		els = p.parseStmtOrBlock()
	}
	return &IfStmt{baseNode{NewSpan(start, p.cur.Loc)}, cond, then, els}
}

// skipOptTrailingNewlineBeforeElse allows `else` after a `;` or on its
// own line after a statement, without swallowing terminators that are
// actually meant as statement terminators elsewhere.
func (p *Parser) skipOptTrailingNewlineBeforeElse() {
	for p.cur.Kind == TokNewline || p.cur.Kind == TokSemi {
		nxt := p.peek()
		if nxt.Kind == TokElse {
			p.afterOperator()
			p.advance()
			continue
		}
		break
	}
}

func (p *Parser) parseWhile() Stmt {
	start := p.cur.Loc
	p.afterOperator()
	p.advance()
	p.expect(TokLParen)
	cond := p.parseExpr()
	p.afterOperand()
	p.expect(TokRParen)
	body := p.parseStmtOrBlock()
	return &WhileStmt{baseNode{NewSpan(start, p.cur.Loc)}, cond, body}
}

func (p *Parser) parseDoWhile() Stmt {
	start := p.cur.Loc
	p.afterOperator()
	p.advance()
	body := p.parseStmtOrBlock()
	p.skipNewlines()
	p.expect(TokWhile)
	p.expect(TokLParen)
	cond := p.parseExpr()
	p.afterOperand()
	p.expect(TokRParen)
	return &DoWhileStmt{baseNode{NewSpan(start, p.cur.Loc)}, body, cond}
}

func (p *Parser) parseFor() Stmt {
	start := p.cur.Loc
	p.afterOperator()
	p.advance()
	p.expect(TokLParen)
	// `for (k in arr)` lookahead: identifier then `in`.
	if p.cur.Kind == TokIdent && p.peek().Kind == TokIn {
		varName := p.cur.Text
		varLoc := p.cur.Loc
		p.afterOperand()
		p.advance()
		p.afterOperator()
		p.advance() // `in`
		arrName := p.expect(TokIdent).Text
		p.afterOperand()
		p.expect(TokRParen)
		body := p.parseStmtOrBlock()
		return &ForInStmt{baseNode{NewSpan(start, p.cur.Loc)}, p.resolveVar(varName, varLoc), p.resolveVar(arrName, varLoc), body}
	}
	var init Stmt
	if p.cur.Kind != TokSemi {
		init = p.parseStmt()
	}
	p.afterOperator()
	p.expect(TokSemi)
	var cond Expr
	if p.cur.Kind != TokSemi {
		cond = p.parseExpr()
	}
	p.afterOperator()
	p.expect(TokSemi)
	var post Stmt
	if p.cur.Kind != TokRParen {
		post = p.parseStmt()
	}
	p.afterOperand()
	p.expect(TokRParen)
	body := p.parseStmtOrBlock()
	return &ForStmt{baseNode{NewSpan(start, p.cur.Loc)}, init, cond, post, body}
}

func (p *Parser) parseSwitch() Stmt {
	start := p.cur.Loc
	p.afterOperator()
	p.advance()
	p.expect(TokLParen)
	tag := p.parseExpr()
	p.afterOperand()
	p.expect(TokRParen)
	p.skipOptNewlines()
	p.afterOperator()
	p.expect(TokLBrace)
	p.skipNewlines()
	sw := &SwitchStmt{Tag: tag}
	for p.cur.Kind == TokCase || p.cur.Kind == TokDefault {
		var clause CaseClause
		if p.cur.Kind == TokCase {
			p.afterOperator()
			p.advance()
			clause.Values = append(clause.Values, p.parseExpr())
			for p.cur.Kind == TokComma {
				p.afterOperator()
				p.advance()
				clause.Values = append(clause.Values, p.parseExpr())
			}
		} else {
			p.afterOperator()
			p.advance()
		}
		p.afterOperator()
		p.expect(TokColon)
		p.skipNewlines()
		for p.cur.Kind != TokCase && p.cur.Kind != TokDefault && p.cur.Kind != TokRBrace {
			clause.Body = append(clause.Body, p.parseStmt())
			p.skipNewlines()
		}
		sw.Cases = append(sw.Cases, clause)
	}
	end := p.cur.Loc
	p.afterOperand()
	p.expect(TokRBrace)
	sw.baseNode = baseNode{span: NewSpan(start, end)}
	return sw
}

// parseLocalDecl handles `@local a, b, c;` inside a function body,
// registering fresh slots in the enclosing scope (spec.md §3.3). It
// produces a no-op statement: the declaration's only effect is on
// name resolution for the rest of the body.
func (p *Parser) parseLocalDecl() Stmt {
	start := p.cur.Loc
	p.afterOperand()
	p.advance()
	if p.fnScope == nil {
		p.errorf("@local outside of a function body")
	}
	for {
		name := p.expect(TokIdent).Text
		if _, exists := p.fnScope.params[name]; !exists {
			if _, exists := p.fnScope.locals[name]; !exists {
				idx := len(p.fnScope.params) + len(p.fnScope.locals)
				p.fnScope.locals[name] = idx
			}
		}
		if p.cur.Kind != TokComma {
			break
		}
		p.afterOperator()
		p.advance()
	}
	return &ExprStmt{baseNode{NewSpan(start, p.cur.Loc)}, nil}
}

func (p *Parser) parseDelete() Stmt {
	start := p.cur.Loc
	p.afterOperator()
	p.advance()
	name := p.expect(TokIdent).Text
	ref := p.resolveVar(name, start)
	var idx []Expr
	if p.cur.Kind == TokLBracket {
		p.afterOperator()
		p.advance()
		idx = append(idx, p.parseExpr())
		for p.cur.Kind == TokComma {
			p.afterOperator()
			p.advance()
			idx = append(idx, p.parseExpr())
		}
		p.afterOperand()
		p.expect(TokRBracket)
	}
	return &DeleteStmt{baseNode{NewSpan(start, p.cur.Loc)}, ref, idx}
}

func (p *Parser) parsePrint() Stmt {
	start := p.cur.Loc
	isPrintf := p.cur.Kind == TokPrintf
	p.afterOperator()
	p.advance()
	ps := &PrintStmt{Printf: isPrintf}
	p.noGT = true
	for !p.atStmtEnd() && p.cur.Kind != TokGt && p.cur.Kind != TokRShift && p.cur.Kind != TokBitOr {
		ps.Args = append(ps.Args, p.parseTernary())
		if p.cur.Kind == TokComma {
			p.afterOperator()
			p.advance()
			p.skipOptNewlines()
			continue
		}
		break
	}
	p.noGT = false
	switch p.cur.Kind {
	case TokGt:
		ps.Redir = RedirTruncate
		p.afterOperator()
		p.advance()
		ps.Target = p.parseTernary()
	case TokRShift:
		ps.Redir = RedirAppend
		p.afterOperator()
		p.advance()
		ps.Target = p.parseTernary()
	case TokBitOr:
		ps.Redir = RedirPipe
		p.afterOperator()
		p.advance()
		ps.Target = p.parseTernary()
	}
	ps.baseNode = baseNode{span: NewSpan(start, p.cur.Loc)}
	return ps
}

// ---- expressions (precedence climbing) ----

func (p *Parser) parseExpr() Expr { return p.parseAssign() }

func (p *Parser) parseAssign() Expr {
	start := p.cur.Loc
	lhs := p.parseTernary()
	switch p.cur.Kind {
	case TokAssign, TokAddAssign, TokSubAssign, TokMulAssign, TokDivAssign,
		TokModAssign, TokIDivAssign, TokPowAssign:
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		rhs := p.parseAssign()
		return &AssignExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, lhs, rhs}
	}
	return lhs
}

func (p *Parser) parseTernary() Expr {
	start := p.cur.Loc
	cond := p.parseConcatOr()
	if p.cur.Kind == TokQuestion {
		p.afterOperator()
		p.advance()
		then := p.parseAssign()
		p.afterOperator()
		p.expect(TokColon)
		els := p.parseAssign()
		return &TernaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, cond, then, els}
	}
	return cond
}

// parseConcatOr handles `||`/`&&`/`in`/match/relational/concat in one
// precedence-descending chain, matching AWK's traditional grammar
// (spec.md §4.2's operator precedence table, weakest to strongest):
// ?: , || , && , in , ~ !~ , relational , concat , additive ,
// multiplicative , unary , ** , postfix , primary.
func (p *Parser) parseConcatOr() Expr { return p.parseOr() }

func (p *Parser) parseOr() Expr {
	start := p.cur.Loc
	lhs := p.parseAnd()
	for p.cur.Kind == TokOr {
		p.afterOperator()
		p.advance()
		p.skipOptNewlines()
		rhs := p.parseAnd()
		lhs = &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, TokOr, lhs, rhs}
	}
	return lhs
}

func (p *Parser) parseAnd() Expr {
	start := p.cur.Loc
	lhs := p.parseIn()
	for p.cur.Kind == TokAnd {
		p.afterOperator()
		p.advance()
		p.skipOptNewlines()
		rhs := p.parseIn()
		lhs = &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, TokAnd, lhs, rhs}
	}
	return lhs
}

func (p *Parser) parseIn() Expr {
	start := p.cur.Loc
	lhs := p.parseMatch()
	for p.cur.Kind == TokIn {
		p.afterOperator()
		p.advance()
		name := p.expect(TokIdent).Text
		arr := p.resolveVar(name, start)
		var keys []Expr
		if g, ok := lhs.(*GroupExpr); ok {
			keys = g.Items
		} else {
			keys = []Expr{lhs}
		}
		lhs = &InExpr{baseNode{NewSpan(start, p.cur.Loc)}, keys, arr}
	}
	return lhs
}

func (p *Parser) parseMatch() Expr {
	start := p.cur.Loc
	lhs := p.parseRelational()
	for p.cur.Kind == TokTilde || p.cur.Kind == TokNotMatch {
		neg := p.cur.Kind == TokNotMatch
		p.afterOperator()
		p.advance()
		rhs := p.parseRelational()
		lhs = &MatchExpr{baseNode{NewSpan(start, p.cur.Loc)}, neg, lhs, rhs}
	}
	return lhs
}

func (p *Parser) parseRelational() Expr {
	start := p.cur.Loc
	lhs := p.parseConcat()
	if (p.cur.Kind == TokBitOr || p.cur.Kind == TokBiPipe) && !p.noGT {
		if nxt := p.peek(); nxt.Kind == TokGetline || nxt.Kind == TokGetbline {
			bidir := p.cur.Kind == TokBiPipe
			p.afterOperator()
			p.advance() // | or |&
			g := p.parseGetline().(*GetlineExpr)
			g.Command = lhs
			g.Bidirectional = bidir
			g.baseNode = baseNode{span: NewSpan(start, p.cur.Loc)}
			return g
		}
	}
	switch p.cur.Kind {
	case TokLt, TokLe, TokGe, TokEq, TokNe, TokStrictEq, TokStrictNe,
		TokLShift, TokBitAnd, TokBitXor:
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		rhs := p.parseConcat()
		return &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, lhs, rhs}
	case TokRShift:
		if p.noGT {
			return lhs
		}
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		rhs := p.parseConcat()
		return &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, lhs, rhs}
	case TokGt:
		if p.noGT {
			return lhs
		}
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		rhs := p.parseConcat()
		return &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, lhs, rhs}
	}
	return lhs
}

// parseConcat handles both explicit `%%` and implicit (adjacency)
// concatenation when dialect.blankconcat is enabled (spec.md §4.5).
func (p *Parser) parseConcat() Expr {
	start := p.cur.Loc
	parts := []Expr{p.parseAdditive()}
	for {
		if p.cur.Kind == TokConcat {
			p.afterOperator()
			p.advance()
			parts = append(parts, p.parseAdditive())
			continue
		}
		if p.opts.GetBool("dialect.blankconcat") && p.startsConcatOperand() {
			parts = append(parts, p.parseAdditive())
			continue
		}
		break
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return &ConcatExpr{baseNode{NewSpan(start, p.cur.Loc)}, parts}
}

// startsConcatOperand reports whether the current token can begin a
// new operand for implicit concatenation, distinguishing `a b` (two
// operands) from `a + b` (additive) or `a, b` (list separator).
func (p *Parser) startsConcatOperand() bool {
	switch p.cur.Kind {
	case TokIdent, TokInt, TokFloat, TokString, TokByteString, TokRawString,
		TokRawByteString, TokChar, TokByteChar, TokDollar, TokLParen, TokNot,
		TokMinus, TokPlus, TokIncr, TokDecr, TokAtArgc, TokAtArgv:
		return true
	}
	return false
}

func (p *Parser) parseAdditive() Expr {
	start := p.cur.Loc
	lhs := p.parseMultiplicative()
	for p.cur.Kind == TokPlus || p.cur.Kind == TokMinus {
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		rhs := p.parseMultiplicative()
		lhs = &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, lhs, rhs}
	}
	return lhs
}

func (p *Parser) parseMultiplicative() Expr {
	start := p.cur.Loc
	lhs := p.parseUnary()
	for p.cur.Kind == TokStar || p.cur.Kind == TokSlash || p.cur.Kind == TokPercent || p.cur.Kind == TokIDiv {
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		rhs := p.parseUnary()
		lhs = &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, lhs, rhs}
	}
	return lhs
}

func (p *Parser) parseUnary() Expr {
	start := p.cur.Loc
	switch p.cur.Kind {
	case TokNot, TokMinus, TokPlus, TokTilde:
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		operand := p.parseUnary()
		return &UnaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, operand, false}
	case TokIncr, TokDecr:
		op := p.cur.Kind
		p.afterOperator()
		p.advance()
		operand := p.parseUnary()
		return &UnaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, operand, false}
	}
	return p.parsePow()
}

func (p *Parser) parsePow() Expr {
	start := p.cur.Loc
	lhs := p.parsePostfix()
	if p.cur.Kind == TokPow {
		p.afterOperator()
		p.advance()
		rhs := p.parseUnary() // right-associative
		return &BinaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, TokPow, lhs, rhs}
	}
	return lhs
}

func (p *Parser) parsePostfix() Expr {
	start := p.cur.Loc
	e := p.parsePrimary()
	for p.cur.Kind == TokIncr || p.cur.Kind == TokDecr {
		op := p.cur.Kind
		p.afterOperand()
		p.advance()
		e = &UnaryExpr{baseNode{NewSpan(start, p.cur.Loc)}, op, e, true}
	}
	return e
}

func (p *Parser) parsePrimary() Expr {
	start := p.cur.Loc
	switch p.cur.Kind {
	case TokInt:
		v := p.cur.IVal
		p.afterOperand()
		p.advance()
		return &IntLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokFloat:
		v := p.cur.FVal
		p.afterOperand()
		p.advance()
		return &FloatLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokString:
		v := p.cur.Text
		p.afterOperand()
		p.advance()
		return &StrLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokRawString:
		v := p.cur.Text
		p.afterOperand()
		p.advance()
		return &StrLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokByteString, TokRawByteString:
		v := []byte(p.cur.Text)
		p.afterOperand()
		p.advance()
		return &ByteStrLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokChar:
		v := rune(p.cur.IVal)
		p.afterOperand()
		p.advance()
		return &CharLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokByteChar:
		v := byte(p.cur.IVal)
		p.afterOperand()
		p.advance()
		return &ByteCharLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokRegex:
		v := p.cur.Text
		p.afterOperand()
		p.advance()
		return &RegexLit{baseNode{NewSpan(start, p.cur.Loc)}, v}
	case TokAtNil:
		p.afterOperand()
		p.advance()
		return &nilLitWrap{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokAtArgc:
		p.afterOperand()
		p.advance()
		return &ArgcExpr{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokAtArgv:
		p.afterOperand()
		p.advance()
		if p.cur.Kind == TokLBracket {
			p.afterOperator()
			p.advance()
			idx := p.parseExpr()
			p.afterOperand()
			p.expect(TokRBracket)
			return &ArgvIndexExpr{baseNode{NewSpan(start, p.cur.Loc)}, idx}
		}
		return &ArgvExpr{baseNode{NewSpan(start, p.cur.Loc)}}
	case TokDollar:
		p.afterOperator()
		p.advance()
		idx := p.parsePostfix()
		return &FieldExpr{baseNode{NewSpan(start, p.cur.Loc)}, idx}
	case TokLParen:
		p.afterOperator()
		p.advance()
		first := p.parseExpr()
		if p.cur.Kind == TokComma {
			items := []Expr{first}
			for p.cur.Kind == TokComma {
				p.afterOperator()
				p.advance()
				items = append(items, p.parseExpr())
			}
			p.afterOperand()
			p.expect(TokRParen)
			return &GroupExpr{baseNode{NewSpan(start, p.cur.Loc)}, items}
		}
		p.afterOperand()
		p.expect(TokRParen)
		return first
	case TokGetline, TokGetbline:
		return p.parseGetline()
	case TokIdent:
		return p.parseIdentOrCall(start)
	default:
		p.errorf("unexpected token `%s` in expression", p.cur.Text)
		return nil
	}
}

// nilLitWrap materializes `@nil` as an Expr; kept distinct from the
// other literal node types since it carries no payload.
type nilLitWrap struct{ baseNode }

func (*nilLitWrap) exprNode() {}

func (p *Parser) parseGetline() Expr {
	start := p.cur.Loc
	byteForm := p.cur.Kind == TokGetbline
	p.afterOperand()
	p.advance()
	g := &GetlineExpr{Byte: byteForm}
	if p.cur.Kind == TokIdent || p.cur.Kind == TokDollar {
		g.Target = p.parsePostfix()
	}
	if p.cur.Kind == TokLt {
		p.afterOperator()
		p.advance()
		g.File = p.parseConcat()
	}
	g.baseNode = baseNode{span: NewSpan(start, p.cur.Loc)}
	return g
}

func (p *Parser) parseIdentOrCall(start Location) Expr {
	name := p.cur.Text
	p.afterOperand()
	p.advance()

	if p.cur.Kind == TokDoubleColon {
		p.afterOperator()
		p.advance()
		sym := p.expect(TokIdent).Text
		if p.cur.Kind == TokLParen {
			args := p.parseArgList()
			return &CallExpr{baseNode{NewSpan(start, p.cur.Loc)}, sym, name, args, nil}
		}
		return &VarRef{baseNode{NewSpan(start, p.cur.Loc)}, name + "::" + sym, ScopeNamed, 0}
	}

	if p.cur.Kind == TokLParen {
		args := p.parseArgList()
		fn := p.funcs[name]
		return &CallExpr{baseNode{NewSpan(start, p.cur.Loc)}, name, "", args, fn}
	}

	ref := p.resolveVar(name, start)
	if p.cur.Kind == TokLBracket {
		p.afterOperator()
		p.advance()
		idx := []Expr{p.parseExpr()}
		for p.cur.Kind == TokComma {
			p.afterOperator()
			p.advance()
			idx = append(idx, p.parseExpr())
		}
		p.afterOperand()
		p.expect(TokRBracket)
		return &IndexExpr{baseNode{NewSpan(start, p.cur.Loc)}, ref, idx}
	}

	// `cmd | getline` / `cmd |& getline` binds tighter than the rest
	// of the expression grammar would suggest, so it's special-cased
	// right after a primary that could be a command string/identifier
	// chain; `cmd` itself is whatever was already parsed as `ref`'s
	// surrounding concat, handled by the caller instead. Bare ref:
	return ref
}

func (p *Parser) parseArgList() []Expr {
	p.afterOperator()
	p.advance() // (
	var args []Expr
	p.skipOptNewlines()
	for p.cur.Kind != TokRParen {
		args = append(args, p.parseExpr())
		p.skipOptNewlines()
		if p.cur.Kind == TokComma {
			p.afterOperator()
			p.advance()
			p.skipOptNewlines()
			continue
		}
		break
	}
	p.afterOperand()
	p.expect(TokRParen)
	return args
}

// resolveVar assigns a VarRef's scope per spec.md §3.3: parameters and
// `@local` locals of the enclosing function resolve first, then the
// global table. Any other name is added to the global table on first
// use; dialect.implicit is not consulted, so undeclared names are
// accepted whatever that option says.
func (p *Parser) resolveVar(name string, loc Location) *VarRef {
	if p.fnScope != nil {
		if i, ok := p.fnScope.params[name]; ok {
			return &VarRef{baseNode{Span{loc, loc}}, name, ScopeParam, i}
		}
		if i, ok := p.fnScope.locals[name]; ok {
			return &VarRef{baseNode{Span{loc, loc}}, name, ScopeLocal, i}
		}
	}
	idx := p.globs.Add(name)
	return &VarRef{baseNode{Span{loc, loc}}, name, ScopeGlobal, idx}
}
