package net

// ProtocolID is the magic at the start of every framed datagram.
const ProtocolID uint32 = 0x4f457403

// Protocol revision spoken by this client. The server accepts a
// [MinProtocolVersion, MaxProtocolVersion] range; we pin both ends.
const (
	SerializationVersion = 28
	ProtocolVersion      = 39
)

// Datagram size policy. A single reliable original packet carries at most
// MaxOriginalPayload bytes of command data; anything larger must be split
// into chunks of at most MaxSplitChunk bytes before framing.
const (
	MaxPacketSize      = 512
	OriginalHeaderSize = 11 // basic header + reliable header + original marker
	SplitHeaderSize    = 17 // basic header + reliable header + split header
	MaxOriginalPayload = MaxPacketSize - OriginalHeaderSize
	MaxSplitChunk      = MaxPacketSize - SplitHeaderSize
)

// BasicHeaderSize is the fixed prefix of every framed datagram: protocol
// magic, peer id and channel. The raw connect handshake is exactly one
// basic header with a zero peer id.
const BasicHeaderSize = 7

// Packet type discriminator, directly after the basic header.
type PacketType uint8

const (
	PacketControl  PacketType = 0
	PacketOriginal PacketType = 1
	PacketSplit    PacketType = 2
	PacketReliable PacketType = 3
)

// Control packet sub-type.
type ControlType uint8

const (
	ControlAck       ControlType = 0
	ControlSetPeerID ControlType = 1
	ControlPing      ControlType = 2
	ControlDisco     ControlType = 3
)

// ToServerCmd numbers commands sent by the client.
type ToServerCmd uint16

const (
	ToServerInit            ToServerCmd = 0x02
	ToServerInit2           ToServerCmd = 0x11
	ToServerPlayerPos       ToServerCmd = 0x23
	ToServerGotBlocks       ToServerCmd = 0x24
	ToServerDeletedBlocks   ToServerCmd = 0x25
	ToServerChatMessage     ToServerCmd = 0x32
	ToServerInventoryFields ToServerCmd = 0x3c
	ToServerClientReady     ToServerCmd = 0x43
	ToServerFirstSRP        ToServerCmd = 0x50
	ToServerSRPBytesA       ToServerCmd = 0x51
	ToServerSRPBytesM       ToServerCmd = 0x52
)

// ToClientCmd numbers commands received from the server. Only the subset
// the client dispatches on is listed; everything else is ignored.
type ToClientCmd uint16

const (
	ToClientHello            ToClientCmd = 0x02
	ToClientAuthAccept       ToClientCmd = 0x03
	ToClientAccessDenied     ToClientCmd = 0x0A
	ToClientBlockData        ToClientCmd = 0x20
	ToClientTimeOfDay        ToClientCmd = 0x29
	ToClientChatMessage      ToClientCmd = 0x2F
	ToClientNodeDef          ToClientCmd = 0x3A
	ToClientShowFormspec     ToClientCmd = 0x44
	ToClientUpdatePlayerList ToClientCmd = 0x56
	ToClientSRPBytesSB       ToClientCmd = 0x60
	ToClientPing             ToClientCmd = 0xFF
)

// Server-advertised authentication mechanism bits (HELLO payload).
const (
	AuthMechLegacyPassword = 0x01
	AuthMechSRP            = 0x02
	AuthMechFirstSRP       = 0x04
)
