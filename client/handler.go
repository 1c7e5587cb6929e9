package client

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	lnet "badc0de.net/pkg/go-luanti/net"
)

// deathScreenForm is the reserved form name the server shows when the
// player dies.
const deathScreenForm = "__builtin:death"

// FormspecHandler receives the raw formspec text of a form it
// registered for.
type FormspecHandler func(formspec string)

// ChatMessageHandler receives each inbound chat message and reports
// whether it consumed it; later handlers only run if it did not.
type ChatMessageHandler func(message string) bool

// dispatcher routes inbound commands to their handlers. Handlers run on
// the network goroutine and drive the session forward by mutating state
// and sending follow-up commands through the client.
type dispatcher struct {
	c *Client

	handlers map[lnet.ToClientCmd]func(data []byte) error

	mu       sync.Mutex
	formspec map[string][]FormspecHandler
	chat     []ChatMessageHandler
}

func newDispatcher(c *Client) *dispatcher {
	d := &dispatcher{
		c:        c,
		formspec: make(map[string][]FormspecHandler),
	}
	d.handlers = map[lnet.ToClientCmd]func([]byte) error{
		lnet.ToClientHello:            d.handleHello,
		lnet.ToClientAuthAccept:       d.handleAuthAccept,
		lnet.ToClientAccessDenied:     d.handleAccessDenied,
		lnet.ToClientSRPBytesSB:       d.handleSRPBytesSB,
		lnet.ToClientNodeDef:          d.handleNodeDef,
		lnet.ToClientShowFormspec:     d.handleShowFormspec,
		lnet.ToClientChatMessage:      d.handleChatMessage,
		lnet.ToClientTimeOfDay:        d.handleTimeOfDay,
		lnet.ToClientUpdatePlayerList: d.handleUpdatePlayerList,
		lnet.ToClientBlockData:        d.handleBlockData,
		lnet.ToClientPing:             d.handlePing,
	}
	return d
}

// process runs the handler for one complete inbound command. Handler
// errors are logged, never propagated: a malformed command must not
// take down the receive loop.
func (d *dispatcher) process(cmd uint16, data []byte) {
	d.c.state.setLastCommand(cmd)
	h, ok := d.handlers[lnet.ToClientCmd(cmd)]
	if !ok {
		glog.V(3).Infof("no handler for command 0x%02x", cmd)
		return
	}
	glog.V(3).Infof("processing command 0x%02x (%d bytes)", cmd, len(data))
	if err := h(data); err != nil {
		glog.Errorf("handling command 0x%02x: %v", cmd, err)
	}
}

func (d *dispatcher) registerFormspecHandler(formname string, h FormspecHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.formspec[formname] = append(d.formspec[formname], h)
	glog.V(2).Infof("registered formspec handler for %q (total %d)", formname, len(d.formspec[formname]))
}

func (d *dispatcher) registerChatMessageHandler(h ChatMessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chat = append(d.chat, h)
}

// handleHello starts authentication. In register mode, and if the
// server advertises first-login SRP, the account is created with
// FIRST_SRP; otherwise the normal SRP login runs.
func (d *dispatcher) handleHello(data []byte) error {
	if d.c.state.Authenticated() {
		glog.V(2).Info("ignoring duplicate HELLO, already authenticated")
		return nil
	}
	if len(data) < 5 {
		return errors.New("HELLO payload too short")
	}
	d.c.state.setPhase(Authenticating)
	authMechs := data[4]

	if d.c.registerMode {
		if authMechs&lnet.AuthMechFirstSRP != 0 {
			glog.Info("registering new player with FIRST_SRP")
			return d.c.sendFirstSRP()
		}
		glog.Warning("server does not offer FIRST_SRP registration, logging in instead")
	}
	return d.c.startSRPAuth()
}

// handleAuthAccept completes authentication and continues the join
// handshake. The payload optionally opens with our spawn position as
// three fixed-point hundredths.
func (d *dispatcher) handleAuthAccept(data []byte) error {
	if _, _, denied := d.c.state.Denied(); denied {
		return errors.New("ignoring AUTH_ACCEPT after access denial")
	}
	glog.V(2).Info("authentication accepted")
	d.c.state.setAuthenticated(true)
	d.c.state.setPhase(Authenticated)

	if len(data) >= 12 {
		msg := lnet.MessageFrom(data[:12])
		x, _ := msg.ReadI32()
		y, _ := msg.ReadI32()
		z, _ := msg.ReadI32()
		d.c.state.setPlayerPosition(Position{
			X: float64(x) / 100.0,
			Y: float64(y) / 100.0,
			Z: float64(z) / 100.0,
		})
	}

	d.c.sendInit2()
	return nil
}

// handleAccessDenied records the terminal denial and publishes it to
// whoever is blocked in Connect. Only the first denial per attempt
// counts.
func (d *dispatcher) handleAccessDenied(data []byte) error {
	if len(data) < 1 {
		return errors.New("ACCESS_DENIED payload too short")
	}
	code := int(data[0])
	reason := DenyReason(code)

	if code == DenyCustomString && len(data) >= 3 {
		msg := lnet.MessageFrom(data[1:])
		if custom, err := msg.ReadString16(); err == nil {
			reason += ": " + custom
		}
	}
	if d.c.registerMode && code == DenyWrongPassword {
		reason = "Player already exists. Try logging in without registration."
	}

	glog.Errorf("access denied: %s (code %d)", reason, code)
	if d.c.state.recordDenial(reason, code) {
		d.c.publishDenial(&ConnError{Reason: "Access denied: " + reason, Code: code})
	}
	return nil
}

// handleSRPBytesSB feeds the server challenge to the SRP exchange and
// answers with the client proof.
func (d *dispatcher) handleSRPBytesSB(data []byte) error {
	msg := lnet.MessageFrom(data)
	salt, err := msg.ReadBytes16()
	if err != nil {
		return errors.Wrap(err, "reading SRP salt")
	}
	bytesB, err := msg.ReadBytes16()
	if err != nil {
		return errors.Wrap(err, "reading SRP public value B")
	}

	exchange := d.c.authExchange()
	if exchange == nil {
		return errors.New("SRP challenge received with no exchange in progress")
	}
	proof, err := exchange.ProcessChallenge(salt, bytesB)
	if err != nil {
		return errors.Wrap(err, "processing SRP challenge")
	}

	cmd, err := lnet.SRPBytesMCommand(proof)
	if err != nil {
		return err
	}
	glog.V(2).Info("sending SRP proof M")
	d.c.sendPacket(cmd)
	return nil
}

// handleNodeDef decompresses the node definition blob. The first
// successful receipt completes the join: the phase reaches Joined and
// the server gets a block acknowledgment. A retransmitted NODEDEF must
// not repeat either.
func (d *dispatcher) handleNodeDef(data []byte) error {
	msg := lnet.MessageFrom(data)
	size, err := msg.ReadU32()
	if err != nil {
		return errors.Wrap(err, "reading node definition size")
	}
	compressed := make([]byte, size)
	if _, err := io.ReadFull(msg, compressed); err != nil {
		return errors.Wrap(err, "reading node definition blob")
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return errors.Wrap(err, "opening node definition blob")
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return errors.Wrap(err, "decompressing node definitions")
	}
	glog.V(2).Infof("received node definitions (%d bytes compressed, %d raw)", size, len(raw))

	if d.c.state.markNodeDefs(len(raw)) {
		d.c.state.setPhase(Joined)
		d.c.sendGotBlocks()
	}
	return nil
}

// handleShowFormspec hands the form to every handler registered for its
// name. With no handler, the reserved death screen form triggers an
// automatic respawn when enabled.
func (d *dispatcher) handleShowFormspec(data []byte) error {
	msg := lnet.MessageFrom(data)
	formspec, err := msg.ReadString32()
	if err != nil {
		return errors.Wrap(err, "reading formspec")
	}
	formname, err := msg.ReadString16()
	if err != nil {
		return errors.Wrap(err, "reading form name")
	}
	glog.V(2).Infof("received formspec %q", formname)

	d.mu.Lock()
	handlers := append([]FormspecHandler(nil), d.formspec[formname]...)
	d.mu.Unlock()

	if len(handlers) > 0 {
		for _, h := range handlers {
			runFormspecHandler(formname, h, formspec)
		}
		return nil
	}

	if formname == deathScreenForm && d.c.state.AutoRespawn() {
		glog.Info("auto-respawning after death")
		d.c.SendFormspecResponse(deathScreenForm, map[string]string{"btn_respawn": "true"})
	}
	return nil
}

// runFormspecHandler isolates an external callback: a panic in it is
// logged instead of killing the network goroutine.
func runFormspecHandler(formname string, h FormspecHandler, formspec string) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("formspec handler for %q panicked: %v", formname, r)
		}
	}()
	h(formspec)
}

// handleChatMessage decodes the wide-string sender and message and
// offers the message to chat handlers in registration order until one
// consumes it.
func (d *dispatcher) handleChatMessage(data []byte) error {
	msg := lnet.MessageFrom(data)
	if _, err := msg.ReadU16(); err != nil { // version + message type
		return errors.Wrap(err, "reading chat header")
	}
	sender, err := msg.ReadWideString()
	if err != nil {
		return errors.Wrap(err, "reading chat sender")
	}
	text, err := msg.ReadWideString()
	if err != nil {
		return errors.Wrap(err, "reading chat text")
	}
	glog.V(2).Infof("chat from %q: %s", sender, text)

	d.mu.Lock()
	handlers := append([]ChatMessageHandler(nil), d.chat...)
	d.mu.Unlock()

	for _, h := range handlers {
		if runChatHandler(h, text) {
			return nil
		}
	}
	return nil
}

func runChatHandler(h ChatMessageHandler, text string) (consumed bool) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("chat handler panicked: %v", r)
		}
	}()
	return h(text)
}

func (d *dispatcher) handleTimeOfDay(data []byte) error {
	msg := lnet.MessageFrom(data)
	tod, err := msg.ReadU16()
	if err != nil {
		return errors.Wrap(err, "reading time of day")
	}
	speed, err := msg.ReadF32()
	if err != nil {
		return errors.Wrap(err, "reading time speed")
	}
	d.c.state.setTime(float64(tod)/24000.0, speed)
	glog.V(3).Infof("time of day %.2fh, speed %.1f", float64(tod)/1000.0, speed)
	return nil
}

// handleUpdatePlayerList applies a roster operation: replace the whole
// set, union names into it, or drop the named entries.
func (d *dispatcher) handleUpdatePlayerList(data []byte) error {
	msg := lnet.MessageFrom(data)
	op, err := msg.ReadU8()
	if err != nil {
		return errors.Wrap(err, "reading player list op")
	}
	count, err := msg.ReadU16()
	if err != nil {
		return errors.Wrap(err, "reading player list count")
	}
	names := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		name, err := msg.ReadString16()
		if err != nil {
			return errors.Wrapf(err, "reading player name %d", i)
		}
		names = append(names, name)
	}

	switch op {
	case 0:
		d.c.state.setPlayers(names)
	case 1:
		d.c.state.addPlayers(names)
	case 2:
		d.c.state.removePlayers(names)
	default:
		return fmt.Errorf("unknown player list op %d", op)
	}
	glog.V(2).Infof("player list now %v", d.c.state.Players())
	return nil
}

func (d *dispatcher) handleBlockData(data []byte) error {
	msg := lnet.MessageFrom(data)
	x, err := msg.ReadI16()
	if err != nil {
		return errors.Wrap(err, "reading block position")
	}
	y, err := msg.ReadI16()
	if err != nil {
		return errors.Wrap(err, "reading block position")
	}
	z, err := msg.ReadI16()
	if err != nil {
		return errors.Wrap(err, "reading block position")
	}
	d.c.state.setBlockData(BlockPos{X: x, Y: y, Z: z}, append([]byte(nil), msg.Bytes()...))
	glog.V(3).Infof("block data for (%d,%d,%d)", x, y, z)
	return nil
}

func (d *dispatcher) handlePing(data []byte) error {
	// The transport already acked the carrying packet; nothing to do.
	glog.V(3).Info("server ping")
	return nil
}
