package hxcommunity

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObfuscate_KnownVector(t *testing.T) {
	got, err := Obfuscate(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(`}1:"a"{`)), got)
}

func TestObfuscate_RoundTrip(t *testing.T) {
	in := map[string]interface{}{
		"action":  "post",
		"content": "héllo wörld 🚀 §HX§https://x/y.mp3§HX§",
		"n":       float64(42),
	}
	enc, err := Obfuscate(in)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	for _, b := range raw {
		assert.Less(t, b, byte(0x80), "encoded payload must be ASCII before base64")
	}

	var out map[string]interface{}
	require.NoError(t, Deobfuscate(enc, &out))
	assert.Equal(t, in, out)
}

func TestDeobfuscate_Malformed(t *testing.T) {
	var v interface{}
	err := Deobfuscate("not base64!!", &v)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	err = Deobfuscate(base64.StdEncoding.EncodeToString([]byte("{not json")), &v)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDeobfuscate_TrimsWhitespace(t *testing.T) {
	enc := mustObfuscate(t, []string{"x"})
	var out []string
	require.NoError(t, Deobfuscate("  "+enc+"\n", &out))
	assert.Equal(t, []string{"x"}, out)
}

func TestReverseRunes(t *testing.T) {
	assert.Equal(t, "", reverseRunes(""))
	assert.Equal(t, "cba", reverseRunes("abc"))
	assert.Equal(t, "ö🚀a", reverseRunes("a🚀ö"))
	assert.Equal(t, `"\u00e9"`, asciiJSON([]byte(`"é"`)))
}
