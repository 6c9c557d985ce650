package transform

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0xff, 0x5a, 0xa5},
		[]byte("MZ\x90\x00 hello world"),
	}
	for range 50 {
		b := make([]byte, rng.Intn(4096))
		rng.Read(b)
		inputs = append(inputs, b)
	}

	for _, key := range []byte{0x01, DefaultKey, 0xff} {
		for _, in := range inputs {
			once := Apply(in, key)
			require.Len(t, once, len(in))
			twice := Apply(once, key)
			assert.True(t, bytes.Equal(in, twice), "key=%#x len=%d", key, len(in))
		}
	}
}

func TestApplyChangesEveryByte(t *testing.T) {
	in := []byte{0x00, 0x10, 0xff}
	out := Apply(in, 0x0f)
	assert.Equal(t, []byte{0x0f, 0x1f, 0xf0}, out)
	assert.Equal(t, []byte{0x00, 0x10, 0xff}, in, "input must not be modified")
}

func TestApplyEmpty(t *testing.T) {
	assert.Empty(t, Apply(nil, DefaultKey))
	assert.Empty(t, Apply([]byte{}, DefaultKey))
}

func TestWriterMatchesApply(t *testing.T) {
	src := bytes.Repeat([]byte("artifact-bytes-"), 10000)
	var dst bytes.Buffer

	w := NewWriter(&dst, DefaultKey)
	n, err := io.CopyBuffer(w, bytes.NewReader(src), make([]byte, 777))
	require.NoError(t, err)
	assert.EqualValues(t, len(src), n)
	assert.Equal(t, Apply(src, DefaultKey), dst.Bytes())
	assert.Equal(t, bytes.Repeat([]byte("artifact-bytes-"), 10000), src)
}

func TestWriterRestoresOriginal(t *testing.T) {
	src := []byte("the quick brown fox")
	var encoded, decoded bytes.Buffer

	_, err := NewWriter(&encoded, 0x33).Write(src)
	require.NoError(t, err)
	_, err = NewWriter(&decoded, 0x33).Write(encoded.Bytes())
	require.NoError(t, err)
	assert.Equal(t, src, decoded.Bytes())
}
