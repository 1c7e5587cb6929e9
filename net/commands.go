package net

import (
	"strings"
)

// Command builders. Each returns a complete command payload: the u16
// command number followed by the command-specific fields, ready to be
// framed by the transport.

func newCommand(cmd ToServerCmd) *Message {
	msg := NewMessage()
	msg.WriteU16(uint16(cmd))
	return msg
}

// InitCommand starts the session: serialization version, supported
// compression modes (none), the supported protocol range and the
// credentials. The server answers with HELLO.
func InitCommand(playername, password string) []byte {
	msg := newCommand(ToServerInit)
	msg.WriteU8(SerializationVersion)
	msg.WriteU16(0) // compression modes
	msg.WriteU16(ProtocolVersion)
	msg.WriteU16(ProtocolVersion)
	msg.WriteString16(strings.ToLower(playername))
	msg.WriteString16(password)
	return msg.Bytes()
}

// Init2Command asks the server to start sending game data after
// authentication succeeded.
func Init2Command() []byte {
	return newCommand(ToServerInit2).Bytes()
}

// ClientReadyCommand reports the client version (major, minor, patch,
// reserved) and a free-form version string.
func ClientReadyCommand(versionString string) []byte {
	msg := newCommand(ToServerClientReady)
	msg.WriteU8(5)
	msg.WriteU8(7)
	msg.WriteU8(0)
	msg.WriteU8(0)
	msg.WriteString16(versionString)
	return msg.Bytes()
}

// GotBlocksCommand acknowledges receipt of the block at the given
// block coordinates.
func GotBlocksCommand(x, y, z int16) []byte {
	msg := newCommand(ToServerGotBlocks)
	msg.WriteI16(x)
	msg.WriteI16(y)
	msg.WriteI16(z)
	return msg.Bytes()
}

// ChatMessageCommand carries a chat line as a wide string.
func ChatMessageCommand(text string) ([]byte, error) {
	msg := newCommand(ToServerChatMessage)
	if err := msg.WriteWideString(text); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// FirstSRPCommand registers a new account: the fresh salt, the SRP
// verifier and whether the password is empty.
func FirstSRPCommand(salt, verifier []byte, emptyPassword bool) ([]byte, error) {
	msg := newCommand(ToServerFirstSRP)
	if err := msg.WriteBytes16(salt); err != nil {
		return nil, err
	}
	if err := msg.WriteBytes16(verifier); err != nil {
		return nil, err
	}
	if emptyPassword {
		msg.WriteU8(1)
	} else {
		msg.WriteU8(0)
	}
	return msg.Bytes(), nil
}

// SRPBytesACommand opens the SRP exchange with the client public value
// A. The trailing byte tells the server the verifier is based on the
// first login method (always 1 for this client).
func SRPBytesACommand(bytesA []byte) ([]byte, error) {
	msg := newCommand(ToServerSRPBytesA)
	if err := msg.WriteBytes16(bytesA); err != nil {
		return nil, err
	}
	msg.WriteU8(1)
	return msg.Bytes(), nil
}

// SRPBytesMCommand sends the client proof M.
func SRPBytesMCommand(bytesM []byte) ([]byte, error) {
	msg := newCommand(ToServerSRPBytesM)
	if err := msg.WriteBytes16(bytesM); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// FormspecResponseCommand answers a formspec (INVENTORY_FIELDS): the
// form name and every field the form submitted. Field values use a u32
// length prefix; everything else a u16 one.
func FormspecResponseCommand(formname string, fields map[string]string) ([]byte, error) {
	msg := newCommand(ToServerInventoryFields)
	if err := msg.WriteString16(formname); err != nil {
		return nil, err
	}
	msg.WriteU16(uint16(len(fields)))
	for key, value := range fields {
		if err := msg.WriteString16(key); err != nil {
			return nil, err
		}
		if err := msg.WriteString32(value); err != nil {
			return nil, err
		}
	}
	return msg.Bytes(), nil
}
