package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncoded(t *testing.T) {
	b, err := DecodeBool(EncodeBool(true))
	require.NoError(t, err)
	assert.True(t, b)

	i32, err := DecodeInt32(EncodeInt32(math.MinInt32))
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), i32)

	i64, err := DecodeInt64(EncodeInt64(-42))
	require.NoError(t, err)
	assert.Equal(t, int64(-42), i64)

	f, err := DecodeFloat32(EncodeFloat32(1.5))
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	s, err := DecodeString(EncodeString(""))
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestTypeMismatch(t *testing.T) {
	_, err := DecodeInt32(EncodeString("1"))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = DecodeBool(nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	// int32 and float32 share a payload size but not a tag
	_, err = DecodeFloat32(EncodeInt32(1))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCorruptPayload(t *testing.T) {
	_, err := DecodeInt64([]byte{byte(TypeInt64), 1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Format([]byte{0xff})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		typ  Type
		text string
	}{
		{TypeBool, "true"},
		{TypeInt32, "-7"},
		{TypeInt64, "9000000000"},
		{TypeFloat32, "0.25"},
		{TypeString, "hello world"},
	}

	for _, c := range cases {
		t.Run(c.typ.String(), func(t *testing.T) {
			b, err := Parse(c.typ, c.text)
			require.NoError(t, err)
			assert.Equal(t, c.typ, TypeOf(b))

			text, err := Format(b)
			require.NoError(t, err)
			assert.Equal(t, c.text, text)
		})
	}

	_, err := Parse(TypeInt32, "9000000000")
	assert.Error(t, err, "out of range for int32")
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("Long")
	require.NoError(t, err)
	assert.Equal(t, TypeInt64, typ)

	_, err = ParseType("double")
	assert.Error(t, err)
}
