package net

import (
	"testing"

	"badc0de.net/pkg/go-luanti/ttesting"
)

func TestReliableOriginalRoundTrip(t *testing.T) {
	tcs := []struct {
		name    string
		peerID  uint16
		seq     uint16
		payload []byte
	}{
		{"typical", 2, 65500, []byte{0x00, 0x32, 'h', 'i'}},
		{"nil peer id", 0, 0, []byte{0x00, 0x11}},
		{"max peer id", 0xFFFF, 1, []byte{0x00, 0x02, 0xAA}},
		{"seq at wrap", 7, 65535, []byte{0x00, 0x43}},
		{"seq after wrap", 7, 0, []byte{0x00, 0x43}},
		{"empty payload after command id", 3, 123, []byte{0x00, 0x24}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := EncodeReliableOriginal(tc.peerID, tc.seq, tc.payload)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			pkt, ok := Parse(raw, false).(*ReliablePacket)
			if !ok {
				t.Fatalf("Parse() = %#v; want *ReliablePacket", Parse(raw, false))
			}
			ttesting.AssertEqualUint16(t, "peer id", pkt.PeerID, tc.peerID)
			ttesting.AssertEqualUint16(t, "seq", pkt.Seq, tc.seq)
			ttesting.AssertEqualInt(t, "channel", int(pkt.Channel), 0)
			orig, ok := pkt.Payload.(*OriginalPayload)
			if !ok {
				t.Fatalf("payload = %#v; want *OriginalPayload", pkt.Payload)
			}
			ttesting.AssertEqualUint16(t, "command id", orig.Cmd, uint16(tc.payload[0])<<8|uint16(tc.payload[1]))
			ttesting.AssertEqualBytes(t, "data", orig.Data, tc.payload[2:])
		})
	}
}

func TestReliableOriginalTooLarge(t *testing.T) {
	if _, err := EncodeReliableOriginal(1, 1, make([]byte, MaxOriginalPayload+1)); err == nil {
		t.Errorf("EncodeReliableOriginal accepted %d bytes; want error", MaxOriginalPayload+1)
	}
	if _, err := EncodeReliableOriginal(1, 1, make([]byte, MaxOriginalPayload)); err != nil {
		t.Errorf("EncodeReliableOriginal rejected %d bytes: %v", MaxOriginalPayload, err)
	}
}

func TestReliableSplitRoundTrip(t *testing.T) {
	chunk := make([]byte, MaxSplitChunk)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	raw, err := EncodeReliableSplit(0xFFFF, 65535, 42, 3, 2, chunk)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ttesting.AssertEqualInt(t, "frame size", len(raw), MaxPacketSize)

	pkt, ok := Parse(raw, false).(*ReliablePacket)
	if !ok {
		t.Fatalf("Parse() did not return a *ReliablePacket")
	}
	ttesting.AssertEqualUint16(t, "peer id", pkt.PeerID, 0xFFFF)
	ttesting.AssertEqualUint16(t, "seq", pkt.Seq, 65535)
	sp, ok := pkt.Payload.(*SplitPayload)
	if !ok {
		t.Fatalf("payload = %#v; want *SplitPayload", pkt.Payload)
	}
	ttesting.AssertEqualUint16(t, "split seq", sp.SplitSeq, 42)
	ttesting.AssertEqualUint16(t, "count", sp.Count, 3)
	ttesting.AssertEqualUint16(t, "index", sp.Index, 2)
	ttesting.AssertEqualBytes(t, "chunk", sp.Chunk, chunk)
}

func TestControlRoundTrips(t *testing.T) {
	t.Run("ack", func(t *testing.T) {
		pkt, ok := Parse(EncodeAck(12, 1, 65535), false).(*AckPacket)
		if !ok {
			t.Fatalf("Parse() did not return an *AckPacket")
		}
		ttesting.AssertEqualUint16(t, "peer id", pkt.PeerID, 12)
		ttesting.AssertEqualInt(t, "channel", int(pkt.Channel), 1)
		ttesting.AssertEqualUint16(t, "seq", pkt.Seq, 65535)
	})
	t.Run("keep alive", func(t *testing.T) {
		pkt, ok := Parse(EncodeKeepAlive(12), false).(*ControlPacket)
		if !ok {
			t.Fatalf("Parse() did not return a *ControlPacket")
		}
		ttesting.AssertEqualInt(t, "ctrl", int(pkt.Ctrl), int(ControlPing))
	})
	t.Run("disconnect", func(t *testing.T) {
		pkt, ok := Parse(EncodeDisconnect(12), false).(*ControlPacket)
		if !ok {
			t.Fatalf("Parse() did not return a *ControlPacket")
		}
		ttesting.AssertEqualInt(t, "ctrl", int(pkt.Ctrl), int(ControlDisco))
	})
}

func TestParseSetPeerID(t *testing.T) {
	// Framed as the server sends it after the handshake: a reliable
	// packet wrapping a SET_PEER_ID control.
	raw := []byte{
		0x4f, 0x45, 0x74, 0x03, // magic
		0x00, 0x00, // peer id 0
		0x00,       // channel
		0x03,       // reliable
		0xff, 0xdc, // seq
		0x00,       // control within reliable
		0x01,       // SET_PEER_ID
		0x12, 0x34, // new peer id
	}
	pkt, ok := Parse(raw, false).(*ReliablePacket)
	if !ok {
		t.Fatalf("Parse() did not return a *ReliablePacket")
	}
	ctl, ok := pkt.Payload.(*ControlPayload)
	if !ok {
		t.Fatalf("payload = %#v; want *ControlPayload", pkt.Payload)
	}
	ttesting.AssertEqualInt(t, "ctrl", int(ctl.Ctrl), int(ControlSetPeerID))
	ttesting.AssertEqualBytes(t, "payload", ctl.Data, []byte{0x12, 0x34})
}

func TestParseTruncatedFailsClosed(t *testing.T) {
	full, err := EncodeReliableOriginal(9, 100, []byte{0x00, 0x32, 'x'})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Every proper prefix that still carries the magic must be
	// unparseable, never reinterpreted as something shorter.
	for n := 4; n < OriginalHeaderSize+2; n++ {
		if pkt := Parse(full[:n], true); pkt != nil {
			t.Errorf("Parse(%d byte prefix) = %#v; want nil", n, pkt)
		}
	}
	ttesting.AssertEqualInt(t, "handshake size", len(EncodeHandshake()), BasicHeaderSize)
}

func TestParseBareCommandGating(t *testing.T) {
	raw := []byte{0x00, 0x2F, 0xAB, 0xCD}

	if pkt := Parse(raw, false); pkt != nil {
		t.Errorf("Parse(bare, gate off) = %#v; want nil", pkt)
	}
	pkt, ok := Parse(raw, true).(*DirectCommand)
	if !ok {
		t.Fatalf("Parse(bare, gate on) did not return a *DirectCommand")
	}
	ttesting.AssertEqualUint16(t, "command id", pkt.Cmd, 0x2F)
	ttesting.AssertEqualBytes(t, "data", pkt.Data, []byte{0xAB, 0xCD})

	if pkt := Parse([]byte{0x42}, true); pkt != nil {
		t.Errorf("Parse(1 byte, gate on) = %#v; want nil", pkt)
	}
}
