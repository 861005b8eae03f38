package hawk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	gem := NewGem()
	lx := NewLexer(gem, NewOptions())
	require.NoError(t, lx.PushSource("<test>", src))
	var toks []Token
	expectOperand := true
	for {
		tok, err := lx.Next(expectOperand)
		require.NoError(t, err)
		if tok.Kind == TokEOF {
			break
		}
		toks = append(toks, tok)
		switch tok.Kind {
		case TokIdent, TokInt, TokFloat, TokString, TokRParen, TokRBracket, TokDollar:
			expectOperand = false
		default:
			expectOperand = true
		}
	}
	return toks
}

func kinds(toks []Token) []TokKind {
	out := make([]TokKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexerBasicTokens(t *testing.T) {
	toks := lexAll(t, `x = 1 + 2.5 * "hi"`)
	assert.Equal(t, []TokKind{TokIdent, TokAssign, TokInt, TokPlus, TokFloat, TokStar, TokString}, kinds(toks))
}

func TestLexerSlashIsRegexAfterOperator(t *testing.T) {
	toks := lexAll(t, `if ($0 ~ /foo/) print`)
	foundRegex := false
	for _, tk := range toks {
		if tk.Kind == TokRegex {
			foundRegex = true
			assert.Equal(t, "foo", tk.Text)
		}
	}
	assert.True(t, foundRegex, "expected a regex token")
}

func TestLexerSlashIsDivisionAfterOperand(t *testing.T) {
	toks := lexAll(t, `x = a / b`)
	assert.Contains(t, kinds(toks), TokSlash)
	for _, tk := range toks {
		assert.NotEqual(t, TokRegex, tk.Kind)
	}
}

func TestLexerRShiftLexedUniformly(t *testing.T) {
	toks := lexAll(t, `print a >> "file"`)
	assert.Contains(t, kinds(toks), TokRShift)
}

func TestLexerIncludeDepthLimit(t *testing.T) {
	gem := NewGem()
	opts := NewOptions()
	opts.SetInt("limit.include_depth", 2)
	lx := NewLexer(gem, opts)
	require.NoError(t, lx.PushSource("a", "x"))
	require.NoError(t, lx.PushSource("b", "y"))
	err := lx.PushSource("c", "z")
	assert.Error(t, err)
}

func TestLexerStringEscapes(t *testing.T) {
	toks := lexAll(t, `"a\tb\n\"c\""`)
	require.Len(t, toks, 1)
	assert.Equal(t, "a\tb\n\"c\"", toks[0].Text)
}
