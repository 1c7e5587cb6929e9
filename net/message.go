package net

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// wide is the codec for 16-bit wide strings on the wire (chat text and
// chat sender names). Luanti transmits these as UTF-16BE without a BOM,
// length-prefixed in 16-bit units rather than bytes.
var wide = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Message is a single command payload under construction or under
// decode. All multibyte fields are big endian.
type Message struct {
	bytes.Buffer
}

func NewMessage() *Message {
	return &Message{Buffer: bytes.Buffer{}}
}

// MessageFrom wraps received payload bytes for decoding. The slice is
// copied; the caller may reuse its buffer.
func MessageFrom(b []byte) *Message {
	return &Message{Buffer: *bytes.NewBuffer(append([]byte(nil), b...))}
}

func (msg *Message) WriteU8(v uint8) {
	msg.WriteByte(v)
}

func (msg *Message) WriteU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	msg.Write(b[:])
}

func (msg *Message) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	msg.Write(b[:])
}

func (msg *Message) WriteI16(v int16) {
	msg.WriteU16(uint16(v))
}

func (msg *Message) WriteI32(v int32) {
	msg.WriteU32(uint32(v))
}

func (msg *Message) ReadU8() (uint8, error) {
	b, err := msg.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("reading u8: %s", err)
	}
	return b, nil
}

func (msg *Message) ReadU16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(msg, b[:]); err != nil {
		return 0, fmt.Errorf("reading u16: %s", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (msg *Message) ReadU32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(msg, b[:]); err != nil {
		return 0, fmt.Errorf("reading u32: %s", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (msg *Message) ReadI16() (int16, error) {
	v, err := msg.ReadU16()
	return int16(v), err
}

func (msg *Message) ReadI32() (int32, error) {
	v, err := msg.ReadU32()
	return int32(v), err
}

func (msg *Message) ReadF32() (float32, error) {
	v, err := msg.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// WriteBytes16 writes a u16 length prefix followed by the raw bytes.
func (msg *Message) WriteBytes16(b []byte) error {
	if len(b) > math.MaxUint16 {
		return fmt.Errorf("writing bytes: %d exceeds u16 length prefix", len(b))
	}
	msg.WriteU16(uint16(len(b)))
	msg.Write(b)
	return nil
}

func (msg *Message) ReadBytes16() ([]byte, error) {
	sz, err := msg.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("reading bytes size: %s", err)
	}
	b := make([]byte, sz)
	if _, err := io.ReadFull(msg, b); err != nil {
		return nil, fmt.Errorf("reading bytes: %s", err)
	}
	return b, nil
}

// WriteString16 writes a u16 length prefix followed by UTF-8 bytes.
func (msg *Message) WriteString16(s string) error {
	return msg.WriteBytes16([]byte(s))
}

func (msg *Message) ReadString16() (string, error) {
	b, err := msg.ReadBytes16()
	if err != nil {
		return "", fmt.Errorf("reading string: %s", err)
	}
	return string(b), nil
}

// WriteString32 writes a u32 length prefix followed by UTF-8 bytes.
// Formspec field values use this wider prefix.
func (msg *Message) WriteString32(s string) error {
	if len(s) > math.MaxUint32 {
		return fmt.Errorf("writing string: %d exceeds u32 length prefix", len(s))
	}
	msg.WriteU32(uint32(len(s)))
	msg.WriteString(s)
	return nil
}

func (msg *Message) ReadString32() (string, error) {
	sz, err := msg.ReadU32()
	if err != nil {
		return "", fmt.Errorf("reading string size: %s", err)
	}
	b := make([]byte, sz)
	if _, err := io.ReadFull(msg, b); err != nil {
		return "", fmt.Errorf("reading string: %s", err)
	}
	return string(b), nil
}

// WriteWideString writes a u16 count of 16-bit units followed by the
// UTF-16BE encoding of s.
func (msg *Message) WriteWideString(s string) error {
	b, err := wide.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("encoding wide string: %s", err)
	}
	if len(b)/2 > math.MaxUint16 {
		return fmt.Errorf("writing wide string: %d units exceed u16 length prefix", len(b)/2)
	}
	msg.WriteU16(uint16(len(b) / 2))
	msg.Write(b)
	return nil
}

func (msg *Message) ReadWideString() (string, error) {
	units, err := msg.ReadU16()
	if err != nil {
		return "", fmt.Errorf("reading wide string size: %s", err)
	}
	b := make([]byte, int(units)*2)
	if _, err := io.ReadFull(msg, b); err != nil {
		return "", fmt.Errorf("reading wide string: %s", err)
	}
	out, err := wide.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decoding wide string: %s", err)
	}
	return string(out), nil
}
