package buffer

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_WriteWithinCapacity(t *testing.T) {
	rb := NewRingBuffer(16)

	n, err := rb.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), rb.Bytes())

	rb.Write([]byte(" world"))
	assert.Equal(t, []byte("hello world"), rb.Bytes())
	assert.Equal(t, 11, rb.Len())
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(8)

	rb.Write([]byte("abcdefgh"))
	rb.Write([]byte("ij"))
	assert.Equal(t, []byte("cdefghij"), rb.Bytes())
}

func TestRingBuffer_OversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)

	rb.Write([]byte("0123456789"))
	assert.Equal(t, []byte("6789"), rb.Bytes())
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte("data"))
	rb.Reset()

	assert.Equal(t, 0, rb.Len())
	assert.Nil(t, rb.Bytes())
}

func TestRingBuffer_NonPositiveCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	assert.Equal(t, 1, rb.Cap())

	rb.Write([]byte("xy"))
	assert.Equal(t, []byte("y"), rb.Bytes())
}

// For any sequence of writes, Bytes() is the suffix of the concatenated
// input, truncated to the buffer capacity.
func TestRingBuffer_SuffixProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("buffer always holds the most recent bytes", prop.ForAll(
		func(chunks [][]byte, capacity int) bool {
			rb := NewRingBuffer(capacity)

			var all []byte
			for _, chunk := range chunks {
				rb.Write(chunk)
				all = append(all, chunk...)
			}

			got := rb.Bytes()
			want := all
			if len(want) > rb.Cap() {
				want = want[len(want)-rb.Cap():]
			}
			if len(want) == 0 {
				return got == nil
			}
			return bytes.Equal(got, want)
		},
		gen.SliceOf(gen.SliceOf(gen.UInt8())),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
