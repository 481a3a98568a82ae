// Package grpctransport implements zab.Transport over gRPC with a
// connection-pool-with-lazy-reconnect shape. Messages are encoded with
// github.com/ugorji/go/codec (msgpack) through a custom grpc codec rather
// than protobuf.
package grpctransport

import (
	"github.com/ugorji/go/codec"
	"google.golang.org/grpc/encoding"
)

const codecName = "msgpack"

var msgpackHandle codec.MsgpackHandle

// msgpackCodec implements encoding.Codec, the extension point gRPC exposes
// for non-protobuf wire formats.
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf []byte
	err := codec.NewEncoderBytes(&buf, &msgpackHandle).Encode(v)
	return buf, err
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, &msgpackHandle).Decode(v)
}

func (msgpackCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}
