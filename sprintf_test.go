package hawk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSprintfBasicVerbs(t *testing.T) {
	rt := &Runtime{}
	out := sprintf(rt, "%d-%5.2f-%s-%x", []Value{Int(3), Float(1.5), &Str{data: "hi"}, Int(255)})
	assert.Equal(t, "3- 1.50-hi-ff", out)
}

func TestSprintfPercentLiteral(t *testing.T) {
	rt := &Runtime{}
	out := sprintf(rt, "100%%", nil)
	assert.Equal(t, "100%", out)
}

func TestSprintfCharVerbFromIntAndString(t *testing.T) {
	rt := &Runtime{}
	assert.Equal(t, "A", sprintf(rt, "%c", []Value{Int(65)}))
	assert.Equal(t, "h", sprintf(rt, "%c", []Value{&Str{data: "hello"}}))
}
