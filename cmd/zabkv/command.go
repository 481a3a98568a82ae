package main

import "github.com/ugorji/go/codec"

// CommandType tags the two operations this demo key-value store's commands
// encode.
type CommandType uint8

const (
	CommandSet CommandType = iota
	CommandUnset
)

// Command is the body carried inside every zab.Transaction this state
// machine applies.
type Command struct {
	Type  CommandType
	Key   string
	Value []byte
}

func EncodeCommand(cmd Command) []byte {
	var buf []byte
	codec.NewEncoderBytes(&buf, &codec.MsgpackHandle{}).Encode(cmd)
	return buf
}

func DecodeCommand(body []byte) Command {
	var cmd Command
	codec.NewDecoderBytes(body, &codec.MsgpackHandle{}).Decode(&cmd)
	return cmd
}
