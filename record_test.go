package hawk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomFieldSeparator(t *testing.T) {
	out, _ := runProgram(t, `BEGIN { FS = ":" } { print $1, $3 }`, nil, nil, "a:b:c\nd:e:f\n")
	assert.Equal(t, "a c\nd f\n", out)
}

func TestRegexFieldSeparator(t *testing.T) {
	out, _ := runProgram(t, `BEGIN { FS = "[,; ]+" } { print NF, $2 }`, nil, nil, "a, b;  c\n")
	assert.Equal(t, "3 b\n", out)
}

func TestCustomRecordSeparator(t *testing.T) {
	out, _ := runProgram(t, `BEGIN { RS = ";" } { print NR, $0 }`, nil, nil, "one;two;three")
	assert.Equal(t, "1 one\n2 two\n3 three\n", out)
}

func TestNRAndNFTracking(t *testing.T) {
	out, _ := runProgram(t, `{ print NR, FNR, NF }`, nil, nil, "a b\nc d e\n")
	assert.Equal(t, "1 1 2\n2 2 3\n", out)
}

func TestFieldAssignmentRebuildsRecord(t *testing.T) {
	out, _ := runProgram(t, `{ $2 = "X"; print }`, nil, nil, "a b c\n")
	assert.Equal(t, "a X c\n", out)
}
