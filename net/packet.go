package net

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
)

// Packet is one parsed datagram. Concrete types are ReliablePacket,
// ControlPacket, AckPacket and DirectCommand.
type Packet interface {
	packet()
}

// ReliablePayload is what a reliable packet wraps: OriginalPayload,
// SplitPayload or ControlPayload.
type ReliablePayload interface {
	reliablePayload()
}

// ReliablePacket must be acknowledged by channel and sequence number
// before its payload is acted upon.
type ReliablePacket struct {
	PeerID  uint16
	Channel uint8
	Seq     uint16
	Payload ReliablePayload
}

// OriginalPayload is a whole command in a single datagram.
type OriginalPayload struct {
	Cmd  uint16
	Data []byte
}

// SplitPayload is one chunk of a command too large for a single
// datagram. Chunks sharing SplitSeq are concatenated in Index order
// once all Count of them have arrived.
type SplitPayload struct {
	SplitSeq uint16
	Count    uint16
	Index    uint16
	Chunk    []byte
}

// ControlPayload is a control message wrapped in a reliable packet; the
// wrapper still needs an ack.
type ControlPayload struct {
	Ctrl ControlType
	Data []byte
}

// ControlPacket is a bare (unreliable) control message.
type ControlPacket struct {
	PeerID  uint16
	Channel uint8
	Ctrl    ControlType
	Data    []byte
}

// AckPacket acknowledges a reliable packet we sent.
type AckPacket struct {
	PeerID  uint16
	Channel uint8
	Seq     uint16
}

// DirectCommand is the legacy bare framing: a command id and payload
// with no basic header. Only produced when Parse is told to accept it.
type DirectCommand struct {
	Cmd  uint16
	Data []byte
}

func (*ReliablePacket) packet() {}
func (*ControlPacket) packet()  {}
func (*AckPacket) packet()      {}
func (*DirectCommand) packet()  {}

func (*OriginalPayload) reliablePayload() {}
func (*SplitPayload) reliablePayload()    {}
func (*ControlPayload) reliablePayload()  {}

func appendBasicHeader(b []byte, peerID uint16, channel uint8) []byte {
	b = binary.BigEndian.AppendUint32(b, ProtocolID)
	b = binary.BigEndian.AppendUint16(b, peerID)
	return append(b, channel)
}

// EncodeHandshake builds the raw connect handshake: a bare basic header
// with the nil peer id, nothing else.
func EncodeHandshake() []byte {
	return appendBasicHeader(make([]byte, 0, BasicHeaderSize), 0, 0)
}

// EncodeReliableOriginal frames a whole command payload (command id
// included) as one reliable original packet on channel 0.
func EncodeReliableOriginal(peerID, seq uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxOriginalPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds single packet limit %d; split it first", len(payload), MaxOriginalPayload)
	}
	b := make([]byte, 0, OriginalHeaderSize+len(payload))
	b = appendBasicHeader(b, peerID, 0)
	b = append(b, byte(PacketReliable))
	b = binary.BigEndian.AppendUint16(b, seq)
	b = append(b, byte(PacketOriginal))
	return append(b, payload...), nil
}

// EncodeReliableSplit frames one chunk of a split command on channel 0.
func EncodeReliableSplit(peerID, seq, splitSeq, count, index uint16, chunk []byte) ([]byte, error) {
	if len(chunk) > MaxSplitChunk {
		return nil, fmt.Errorf("split chunk of %d bytes exceeds limit %d", len(chunk), MaxSplitChunk)
	}
	b := make([]byte, 0, SplitHeaderSize+len(chunk))
	b = appendBasicHeader(b, peerID, 0)
	b = append(b, byte(PacketReliable))
	b = binary.BigEndian.AppendUint16(b, seq)
	b = append(b, byte(PacketSplit))
	b = binary.BigEndian.AppendUint16(b, splitSeq)
	b = binary.BigEndian.AppendUint16(b, count)
	b = binary.BigEndian.AppendUint16(b, index)
	return append(b, chunk...), nil
}

// EncodeAck acknowledges the reliable packet carrying seq on channel.
func EncodeAck(peerID uint16, channel uint8, seq uint16) []byte {
	b := make([]byte, 0, BasicHeaderSize+4)
	b = appendBasicHeader(b, peerID, channel)
	b = append(b, byte(PacketControl), byte(ControlAck))
	return binary.BigEndian.AppendUint16(b, seq)
}

// EncodeDisconnect tells the server we are going away.
func EncodeDisconnect(peerID uint16) []byte {
	b := make([]byte, 0, BasicHeaderSize+2)
	b = appendBasicHeader(b, peerID, 0)
	return append(b, byte(PacketControl), byte(ControlDisco))
}

// EncodeKeepAlive builds the periodic ping control packet.
func EncodeKeepAlive(peerID uint16) []byte {
	b := make([]byte, 0, BasicHeaderSize+2)
	b = appendBasicHeader(b, peerID, 0)
	return append(b, byte(PacketControl), byte(ControlPing))
}

// Parse decodes one received datagram. It returns nil for anything
// malformed: a datagram that matches the protocol magic but is then
// truncated is unparseable, never reinterpreted.
//
// allowBare additionally accepts the legacy framing used by some
// transports, where a datagram without the magic is a bare command id
// plus payload. Keep it off unless the peer is known to emit it, since
// any 2-byte garbage datagram would qualify.
func Parse(data []byte, allowBare bool) Packet {
	if len(data) >= 4 && binary.BigEndian.Uint32(data[0:4]) == ProtocolID {
		return parseFramed(data)
	}
	if allowBare && len(data) >= 2 {
		return &DirectCommand{
			Cmd:  binary.BigEndian.Uint16(data[0:2]),
			Data: data[2:],
		}
	}
	glog.V(3).Infof("unparseable datagram of %d bytes", len(data))
	return nil
}

func parseFramed(data []byte) Packet {
	if len(data) < BasicHeaderSize+1 {
		return nil
	}
	peerID := binary.BigEndian.Uint16(data[4:6])
	channel := data[6]

	switch PacketType(data[7]) {
	case PacketReliable:
		if len(data) < 11 {
			return nil
		}
		seq := binary.BigEndian.Uint16(data[8:10])
		payload := parseReliablePayload(data[10:])
		if payload == nil {
			return nil
		}
		return &ReliablePacket{PeerID: peerID, Channel: channel, Seq: seq, Payload: payload}

	case PacketControl:
		if len(data) < 9 {
			return nil
		}
		ctrl := ControlType(data[8])
		if ctrl == ControlAck {
			if len(data) < 11 {
				return nil
			}
			return &AckPacket{PeerID: peerID, Channel: channel, Seq: binary.BigEndian.Uint16(data[9:11])}
		}
		return &ControlPacket{PeerID: peerID, Channel: channel, Ctrl: ctrl, Data: data[9:]}
	}

	glog.V(3).Infof("framed datagram with unknown packet type %d", data[7])
	return nil
}

func parseReliablePayload(data []byte) ReliablePayload {
	switch PacketType(data[0]) {
	case PacketOriginal:
		if len(data) < 3 {
			return nil
		}
		return &OriginalPayload{
			Cmd:  binary.BigEndian.Uint16(data[1:3]),
			Data: data[3:],
		}
	case PacketSplit:
		if len(data) < 7 {
			return nil
		}
		return &SplitPayload{
			SplitSeq: binary.BigEndian.Uint16(data[1:3]),
			Count:    binary.BigEndian.Uint16(data[3:5]),
			Index:    binary.BigEndian.Uint16(data[5:7]),
			Chunk:    data[7:],
		}
	case PacketControl:
		if len(data) < 2 {
			return nil
		}
		return &ControlPayload{Ctrl: ControlType(data[1]), Data: data[2:]}
	}
	return nil
}
