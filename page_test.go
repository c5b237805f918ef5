package kdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageHeaderRoundTrip(t *testing.T) {
	p := newPage(0)
	p.writeMagic()
	p.setNextFreePage(7)
	p.setHasFreeList(true)

	assert.Equal(t, Magic, p.readMagic())
	assert.Equal(t, PageNum(7), p.nextFreePage())
	assert.True(t, p.hasFreeList())
}

func TestHeaderChecksumDetectsCorruption(t *testing.T) {
	p := newPage(0)
	p.writeMagic()
	p.setNextFreePage(3)
	p.writeHeaderChecksum()
	assert.True(t, p.verifyHeaderChecksum())

	p.data[fhOffNextFree] ^= 0xFF
	assert.False(t, p.verifyHeaderChecksum())
}

func TestPageChecksumDetectsCorruption(t *testing.T) {
	p := newPage(3)
	InitLeaf(p, 0, false)
	p.writeChecksum()
	assert.True(t, p.verifyChecksum())

	p.data[100] ^= 0xFF
	assert.False(t, p.verifyChecksum())
}

func TestNodeBaseForPageZero(t *testing.T) {
	assert.Equal(t, FileHeaderSize, NodeBaseFor(0))
	assert.Equal(t, 0, NodeBaseFor(1))
}

func TestCommonNodeHeaderAccessors(t *testing.T) {
	p := newPage(5)
	p.setNodeType(NodeTypeInternal)
	p.setIsRoot(true)
	p.setParent(5)

	require.Equal(t, NodeTypeInternal, p.nodeType())
	assert.True(t, p.isRoot())
	assert.Equal(t, PageNum(5), p.parent())
}
