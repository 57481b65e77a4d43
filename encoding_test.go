package odm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecs(t *testing.T) {
	doc := Document{
		"s":   "héllo",
		"n":   int64(-7),
		"f":   2.5,
		"b":   false,
		"nil": nil,
		"id":  MustNewID().String(),
	}
	for _, name := range []string{"", "msgpack", "json", "msgpack+zstd", "json+zstd"} {
		t.Run(name, func(t *testing.T) {
			c, err := LookupCodec(name)
			require.NoError(t, err)
			if name != "" {
				deepEqual(t, c.Name(), name)
			}
			data, err := c.Encode(doc)
			require.NoError(t, err)
			back, err := c.Decode(data)
			require.NoError(t, err)
			require.Len(t, back, len(doc))
			for k, v := range doc {
				require.EqualValues(t, v, back[k], k)
			}
		})
	}
	_, err := LookupCodec("xml")
	require.Error(t, err)
}

func TestMsgPack_Deterministic(t *testing.T) {
	doc := Document{"b": 1, "a": 2, "c": 3, "d": "x"}
	first := must(MsgPack.Encode(doc))
	for range 10 {
		require.True(t, bytes.Equal(first, must(MsgPack.Encode(doc))))
	}
}

func TestCodecs_DecodeErrors(t *testing.T) {
	zm := must(LookupCodec("msgpack+zstd"))
	for _, c := range []Codec{MsgPack, JSON, zm} {
		_, err := c.Decode([]byte{0xC1, 0x00})
		var e *DataError
		if !errors.As(err, &e) {
			t.Errorf("%s: err = %T, wanted *DataError", c.Name(), err)
		}
	}
}
