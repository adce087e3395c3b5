package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLinePreservesKeyOrder(t *testing.T) {
	line := []byte(`{"Set":{"ready":{"isReady":true}},"Chat":"hi"}`)

	cmds, err := decodeLine(line)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, TagSet, cmds[0].Tag)
	assert.Equal(t, TagChat, cmds[1].Tag)
	assert.JSONEq(t, `"hi"`, string(cmds[1].Payload))
}

func TestDecodeLineRejectsNonObject(t *testing.T) {
	_, err := decodeLine([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestIsKnownTag(t *testing.T) {
	assert.True(t, isKnownTag(TagHello))
	assert.True(t, isKnownTag(TagTLS))
	assert.False(t, isKnownTag("Bogus"))
}
