package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRBFSignaling(t *testing.T) {
	assert.True(t, IsRBFSignaling([]uint32{0xffffffff, 0xfffffffd}))
	assert.True(t, IsRBFSignaling([]uint32{0}))
	assert.False(t, IsRBFSignaling([]uint32{0xfffffffe, 0xffffffff}))
	assert.False(t, IsRBFSignaling(nil))
}

func TestAllMaxSequence(t *testing.T) {
	assert.True(t, AllMaxSequence([]uint32{0xffffffff, 0xffffffff}))
	assert.False(t, AllMaxSequence([]uint32{0xffffffff, 0xfffffffe}))
	assert.False(t, AllMaxSequence(nil))
}

func TestMinSequence(t *testing.T) {
	assert.Equal(t, uint32(0xfffffffe), MinSequence([]uint32{0xffffffff, 0xfffffffe}))
	assert.Equal(t, uint32(0xffffffff), MinSequence(nil))
}

func TestParseRelativeTimelock(t *testing.T) {
	enabled, _, _ := ParseRelativeTimelock(0xffffffff)
	assert.False(t, enabled)

	enabled, typ, v := ParseRelativeTimelock(144)
	assert.True(t, enabled)
	assert.Equal(t, "blocks", typ)
	assert.Equal(t, uint32(144), v)

	enabled, typ, v = ParseRelativeTimelock(1<<22 | 2)
	assert.True(t, enabled)
	assert.Equal(t, "time", typ)
	assert.Equal(t, uint32(1024), v)
}

func TestReplacementSequence(t *testing.T) {
	assert.Equal(t, uint32(0xfffffffd), ReplacementSequence(0xffffffff))
	assert.Equal(t, uint32(0xfffffffd), ReplacementSequence(0xfffffffe))
	// relative lock preserved
	assert.Equal(t, uint32(144), ReplacementSequence(144))
}
