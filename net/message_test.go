package net

import (
	"testing"

	"badc0de.net/pkg/go-luanti/ttesting"
)

func TestStringRoundTrips(t *testing.T) {
	tcs := []string{"", "player", "grüße", "日本語"}
	for _, s := range tcs {
		t.Run("s16 "+s, func(t *testing.T) {
			msg := NewMessage()
			if err := msg.WriteString16(s); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := msg.ReadString16()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			ttesting.AssertEqualStr(t, "value", got, s)
		})
		t.Run("s32 "+s, func(t *testing.T) {
			msg := NewMessage()
			if err := msg.WriteString32(s); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := msg.ReadString32()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			ttesting.AssertEqualStr(t, "value", got, s)
		})
		t.Run("wide "+s, func(t *testing.T) {
			msg := NewMessage()
			if err := msg.WriteWideString(s); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := msg.ReadWideString()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			ttesting.AssertEqualStr(t, "value", got, s)
		})
	}
}

func TestWideStringLayout(t *testing.T) {
	// The prefix counts 16-bit units, not bytes, and the encoding is
	// UTF-16BE without a BOM.
	msg := NewMessage()
	if err := msg.WriteWideString("hi"); err != nil {
		t.Fatalf("write: %v", err)
	}
	ttesting.AssertEqualBytes(t, "layout", msg.Bytes(), []byte{0x00, 0x02, 0x00, 'h', 0x00, 'i'})

	// Astral code points take two units each.
	msg = NewMessage()
	if err := msg.WriteWideString("\U0001F600"); err != nil {
		t.Fatalf("write: %v", err)
	}
	ttesting.AssertEqualBytes(t, "surrogates", msg.Bytes(), []byte{0x00, 0x02, 0xD8, 0x3D, 0xDE, 0x00})
}

func TestReadTruncated(t *testing.T) {
	// A length prefix promising more bytes than the message carries is
	// an error, not a short read.
	msg := MessageFrom([]byte{0x00, 0x05, 'a', 'b'})
	if _, err := msg.ReadString16(); err == nil {
		t.Error("ReadString16 on truncated message succeeded; want error")
	}

	msg = MessageFrom([]byte{0x00, 0x03, 0x00, 'a'})
	if _, err := msg.ReadWideString(); err == nil {
		t.Error("ReadWideString on truncated message succeeded; want error")
	}

	msg = MessageFrom([]byte{0x01})
	if _, err := msg.ReadU16(); err == nil {
		t.Error("ReadU16 on 1 byte succeeded; want error")
	}
}

func TestNumericRoundTrip(t *testing.T) {
	msg := NewMessage()
	msg.WriteU8(0xFE)
	msg.WriteU16(65500)
	msg.WriteU32(0x4f457403)
	msg.WriteI16(-1234)
	msg.WriteI32(-100000)

	if v, err := msg.ReadU8(); err != nil || v != 0xFE {
		t.Errorf("ReadU8() = %d, %v; want 254", v, err)
	}
	if v, err := msg.ReadU16(); err != nil || v != 65500 {
		t.Errorf("ReadU16() = %d, %v; want 65500", v, err)
	}
	if v, err := msg.ReadU32(); err != nil || v != 0x4f457403 {
		t.Errorf("ReadU32() = %d, %v; want %d", v, err, 0x4f457403)
	}
	if v, err := msg.ReadI16(); err != nil || v != -1234 {
		t.Errorf("ReadI16() = %d, %v; want -1234", v, err)
	}
	if v, err := msg.ReadI32(); err != nil || v != -100000 {
		t.Errorf("ReadI32() = %d, %v; want -100000", v, err)
	}
}
