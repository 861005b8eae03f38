package hawk

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runProgram(t *testing.T, src string, argv []string, assigns map[string]string, stdin string) (string, int) {
	t.Helper()
	prog, err := Parse(src, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	code, err := Run(prog, nil, argv, assigns, strings.NewReader(stdin), &out, &out)
	require.NoError(t, err)
	return out.String(), code
}

func TestFieldSplitAndPrint(t *testing.T) {
	out, code := runProgram(t, `{ print $2, $1 }`, nil, nil, "hello world\nfoo bar\n")
	assert.Equal(t, 0, code)
	assert.Equal(t, "world hello\nbar foo\n", out)
}

func TestConstantFoldingArithmetic(t *testing.T) {
	out, _ := runProgram(t, `BEGIN { print 2 + 3 * 4, (2 + 3) * 4, 10 % 3 }`, nil, nil, "")
	assert.Equal(t, "14 20 1\n", out)
}

func TestSelfReferentialMapCollectedByGC(t *testing.T) {
	out, _ := runProgram(t, `
BEGIN {
	a["x"] = 1
	a["self"] = a
	a = @nil
	hawk::gc()
	print "done"
}`, nil, nil, "")
	assert.Equal(t, "done\n", out)
}

func TestPassByReferenceSwap(t *testing.T) {
	out, _ := runProgram(t, `
function swap(&a, &b,    t) {
	t = a
	a = b
	b = t
}
BEGIN {
	x = 1
	y = 2
	swap(x, y)
	print x, y
}`, nil, nil, "")
	assert.Equal(t, "2 1\n", out)
}

func TestPassByReferenceIncrement(t *testing.T) {
	out, _ := runProgram(t, `
function inc(&x) { x = x + 1 }
BEGIN {
	n = 10
	inc(n)
	print n
}`, nil, nil, "")
	assert.Equal(t, "11\n", out)
}

func TestVariadicArgcArgv(t *testing.T) {
	out, _ := runProgram(t, `
function sum(...) {
	for (i = 1; i <= @argc; i++) {
		total += @argv[i]
	}
	return total
}
BEGIN { print sum(1, 2, 3, 4) }`, nil, nil, "")
	assert.Equal(t, "10\n", out)
}

func TestIncludeOnceSkipsSecondInclusion(t *testing.T) {
	gem := NewGem()
	opts := NewOptions()
	lx := NewLexer(gem, opts)
	require.NoError(t, lx.PushSource("main.hk", `
@include_once "lib.hk";
@include_once "lib.hk";
BEGIN { print loaded }
`))
	p := NewParser(gem, opts, lx)
	p.SetIncludeResolver(func(path string) (string, string, error) {
		// Resolution runs on every @include_once occurrence (the
		// fingerprint check happens after the content is in hand);
		// what must not happen twice is the BEGIN block actually
		// running: it increments a counter, so a second inclusion
		// would print 2 in the assertion below on stdout.
		return `@global loaded; BEGIN { loaded++ }`, path, nil
	})
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	require.Nil(t, gem.Err())

	var out bytes.Buffer
	_, err = Run(prog, opts, nil, nil, strings.NewReader(""), &out, &out)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out.String())
}

func TestNumericStringComparison(t *testing.T) {
	out, _ := runProgram(t, `BEGIN { if ("10" == 10) print "eq"; else print "ne" }`, nil, nil, "")
	assert.Equal(t, "eq\n", out)
}

func TestSprintfDirectives(t *testing.T) {
	out, _ := runProgram(t, `BEGIN { printf "%d %5.2f %s %c\n", 7, 3.14159, "hi", 65 }`, nil, nil, "")
	assert.Equal(t, "7  3.14 hi A\n", out)
}
