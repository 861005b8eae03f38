package hawk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinStringFunctions(t *testing.T) {
	out, _ := runProgram(t, `BEGIN {
		print length("hello")
		print substr("hello world", 7)
		print substr("hello world", 1, 5)
		print index("hello world", "world")
		print toupper("shout"), tolower("QUIET")
	}`, nil, nil, "")
	assert.Equal(t, "5\nworld\nhello\n7\nSHOUT quiet\n", out)
}

func TestBuiltinSplit(t *testing.T) {
	out, _ := runProgram(t, `BEGIN {
		n = split("a:b:c", parts, ":")
		print n, parts[1], parts[2], parts[3]
	}`, nil, nil, "")
	assert.Equal(t, "3 a b c\n", out)
}

func TestBuiltinGsubCountsAndReplaces(t *testing.T) {
	out, _ := runProgram(t, `BEGIN {
		s = "aXbXcX"
		n = gsub(/X/, "-", s)
		print n, s
	}`, nil, nil, "")
	assert.Equal(t, "3 a-b-c-\n", out)
}

func TestBuiltinMatchSetsRstartRlength(t *testing.T) {
	out, _ := runProgram(t, `BEGIN {
		match("hello world", /wor/)
		print RSTART, RLENGTH
	}`, nil, nil, "")
	assert.Equal(t, "7 3\n", out)
}

func TestBuiltinAsort(t *testing.T) {
	out, _ := runProgram(t, `BEGIN {
		a[1] = "banana"; a[2] = "apple"; a[3] = "cherry"
		n = asort(a)
		print n, a[1], a[2], a[3]
	}`, nil, nil, "")
	assert.Equal(t, "3 apple banana cherry\n", out)
}

func TestBuiltinTypeof(t *testing.T) {
	out, _ := runProgram(t, `BEGIN {
		print typeof(1), typeof("s"), typeof(1.5)
	}`, nil, nil, "")
	assert.Equal(t, "int string float\n", out)
}

func TestBuiltinTypenameAndStr(t *testing.T) {
	out, _ := runProgram(t, `BEGIN {
		print typename(1), typename("s"), typename(1.5)
		print str(42), str(3.5) "x"
	}`, nil, nil, "")
	assert.Equal(t, "int string float\n42 3.5x\n", out)
}
