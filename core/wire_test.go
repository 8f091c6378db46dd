package mortar

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMsg(&buf, map[string]any{"id": "r1", "op": "eval", "expr": "1 + 1"}))
	require.NoError(t, WriteMsg(&buf, map[string]any{"op": "clear"}))

	first, err := ReadMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "r1", "op": "eval", "expr": "1 + 1"}, first)

	second, err := ReadMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, "clear", second["op"])

	_, err = ReadMsg(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestWireTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(10)))
	buf.WriteString(`{"a":`)
	_, err := ReadMsg(&buf)
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestWireRejectsOversizedMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(maxMsgSize+1)))
	_, err := ReadMsg(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestNextIDIsUnique(t *testing.T) {
	a, b := NextID(), NextID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "r"))
}
