package gpu

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUniform struct{ tag uint32 }

func (u testUniform) Size() int { return 40 }

func (u testUniform) Marshal() []byte {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint32(buf, u.tag)
	binary.LittleEndian.PutUint32(buf[36:], ^u.tag)
	return buf
}

func TestDynamicUniformBuffer_StrideAndOffsets(t *testing.T) {
	buf := NewDynamicUniformBuffer[testUniform]("test", Limits{MinUniformBufferOffsetAlignment: 256})
	assert.Equal(t, uint64(40), buf.ItemSize())
	assert.Equal(t, uint64(256), buf.Stride())

	assert.Equal(t, uint32(0), buf.Push(testUniform{tag: 1}))
	assert.Equal(t, uint32(256), buf.Push(testUniform{tag: 2}))
	assert.Equal(t, uint32(512), buf.Push(testUniform{tag: 3}))
	assert.Equal(t, 3, buf.Len())

	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf.Staged(256)))
	assert.Nil(t, buf.Staged(768))
}

func TestDynamicUniformBuffer_WriteUploadsEveryOffset(t *testing.T) {
	dev := NewSoftDevice(SoftDeviceOptions{})
	buf := NewDynamicUniformBuffer[testUniform]("test", dev.Limits())

	offsets := make([]uint32, 5)
	for i := range offsets {
		offsets[i] = buf.Push(testUniform{tag: uint32(100 + i)})
	}
	require.NoError(t, buf.Write(dev))
	require.NotNil(t, buf.Buffer())
	assert.GreaterOrEqual(t, buf.Buffer().Size(), uint64(5)*buf.Stride())

	data := dev.ReadBuffer(buf.Buffer())
	for i, off := range offsets {
		assert.Equal(t, uint32(100+i), binary.LittleEndian.Uint32(data[off:]))
		assert.Equal(t, ^uint32(100+i), binary.LittleEndian.Uint32(data[off+36:]))
	}

	binding := buf.Binding()
	require.NotNil(t, binding)
	assert.Equal(t, uint64(40), binding.Size)
}

func TestDynamicUniformBuffer_GrowsOnlyWhenNeeded(t *testing.T) {
	dev := NewSoftDevice(SoftDeviceOptions{})
	buf := NewDynamicUniformBuffer[testUniform]("test", dev.Limits())

	for i := 0; i < 4; i++ {
		buf.Push(testUniform{tag: uint32(i)})
	}
	require.NoError(t, buf.Write(dev))
	assert.True(t, buf.Reallocated())
	first := buf.Buffer().Id()

	buf.Clear()
	for i := 0; i < 3; i++ {
		buf.Push(testUniform{tag: uint32(i)})
	}
	require.NoError(t, buf.Write(dev))
	assert.False(t, buf.Reallocated())
	assert.Equal(t, first, buf.Buffer().Id())

	buf.Clear()
	for i := 0; i < 40; i++ {
		buf.Push(testUniform{tag: uint32(i)})
	}
	require.NoError(t, buf.Write(dev))
	assert.True(t, buf.Reallocated())
	assert.NotEqual(t, first, buf.Buffer().Id())
	assert.Equal(t, 2, dev.BufferAllocations())
}

func TestDynamicUniformBuffer_EmptyHasNoBinding(t *testing.T) {
	dev := NewSoftDevice(SoftDeviceOptions{})
	buf := NewDynamicUniformBuffer[testUniform]("test", dev.Limits())

	require.NoError(t, buf.Write(dev))
	assert.Nil(t, buf.Binding())
	assert.Equal(t, 0, dev.BufferAllocations())

	buf.Push(testUniform{})
	require.NoError(t, buf.Write(dev))
	buf.Clear()
	require.NoError(t, buf.Write(dev))
	assert.Nil(t, buf.Binding(), "cleared buffer binds nothing")
}

func TestDynamicUniformBuffer_AllocationFailure(t *testing.T) {
	dev := NewSoftDevice(SoftDeviceOptions{MaxBufferSize: 1024})
	buf := NewDynamicUniformBuffer[testUniform]("lights", dev.Limits())

	for i := 0; i < 8; i++ {
		buf.Push(testUniform{})
	}
	err := buf.Write(dev)
	assert.ErrorIs(t, err, ErrBufferAllocation)
	assert.Nil(t, buf.Binding())
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(256), AlignUp(128, 256))
	assert.Equal(t, uint64(256), AlignUp(256, 256))
	assert.Equal(t, uint64(512), AlignUp(257, 256))
	assert.Equal(t, uint64(7), AlignUp(7, 0))
}
