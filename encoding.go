package odm

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Document is the serialized form of a record: property name to a
// JSON-compatible value.
type Document = map[string]any

// Codec turns documents into bytes for storage.
type Codec interface {
	Name() string
	Encode(doc Document) ([]byte, error)
	Decode(data []byte) (Document, error)
}

var (
	MsgPack Codec = msgpackCodec{}
	JSON    Codec = jsonCodec{}
)

const defaultCodecName = "msgpack"

// LookupCodec resolves "msgpack", "json", "msgpack+zstd" or "json+zstd".
func LookupCodec(name string) (Codec, error) {
	switch name {
	case "", defaultCodecName:
		return MsgPack, nil
	case "json":
		return JSON, nil
	case "msgpack+zstd":
		return Compressed(MsgPack)
	case "json+zstd":
		return Compressed(JSON)
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(doc)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("encode msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(data []byte) (Document, error) {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	var doc Document
	err := dec.Decode(&doc)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, dataErrf(data, 0, err, "decode msgpack")
	}
	return doc, nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(doc Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return raw, nil
}

func (jsonCodec) Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dataErrf(data, 0, err, "decode json")
	}
	return doc, nil
}

type zstdCodec struct {
	inner Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// Compressed wraps inner with zstd compression.
func Compressed(inner Codec) (Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCodec{inner: inner, enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Name() string { return c.inner.Name() + "+zstd" }

func (c *zstdCodec) Encode(doc Document) ([]byte, error) {
	raw, err := c.inner.Encode(doc)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

func (c *zstdCodec) Decode(data []byte) (Document, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, dataErrf(data, 0, err, "decompress zstd")
	}
	return c.inner.Decode(raw)
}
