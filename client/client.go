// Package client implements a headless Luanti (Minetest) client:
// connection handshake, SRP authentication, the reliable-UDP session
// and dispatch of server commands. It holds no game world beyond a
// small cached snapshot (roster, time, raw block data); rendering and
// game logic are up to the caller.
//
// A Client is driven from the caller's goroutine; one background
// goroutine per connection runs the receive loop and all command
// handlers. Registered handlers are therefore invoked off the caller's
// goroutine.
package client

import (
	"sync"
	"time"

	"github.com/golang/glog"

	lnet "badc0de.net/pkg/go-luanti/net"
	"badc0de.net/pkg/go-luanti/srp"
)

const (
	// connectTimeout bounds the whole connect sequence, from handshake
	// to fully joined.
	connectTimeout = 15 * time.Second
	connectPoll    = 100 * time.Millisecond

	// DefaultPort is the default Luanti server port.
	DefaultPort = 30000
)

// versionString identifies this client to the server in CLIENT_READY.
const versionString = "go-luanti_v1.0"

// Client connects to one Luanti server as one player. Create it with
// New; a Client must not be copied.
type Client struct {
	host       string
	port       int
	playername string
	password   string

	state    *State
	tr       transporter
	dispatch *dispatcher

	registerMode bool

	srpMu sync.Mutex
	srp   *srp.Exchange

	denialMu sync.Mutex
	denialCh chan *ConnError
}

// New creates a client for the given server and credentials. Nothing
// happens on the network until Connect.
func New(host string, port int, playername, password string) *Client {
	c := &Client{
		host:       host,
		port:       port,
		playername: playername,
		password:   password,
		state:      newState(),
	}
	c.dispatch = newDispatcher(c)
	c.tr = newConn(host, port, c.state, c.dispatch.process)
	return c
}

// State exposes the observable session state (phase, roster, time,
// block snapshot, counters).
func (c *Client) State() *State {
	return c.state
}

// Connect establishes the session: transport handshake, INIT, the SRP
// exchange (or FIRST_SRP registration when register is true), and the
// join handshake. It blocks until the session is fully joined, the
// server denies access, or the overall timeout expires.
//
// A denial is returned as *ConnError carrying the server's reason code,
// so the caller can tell "unknown player, try registering" apart from
// hard failures.
func (c *Client) Connect(register bool) error {
	glog.Infof("connecting to %s:%d as %q", c.host, c.port, c.playername)
	c.registerMode = register

	c.state.Reset()
	c.resetDenialChannel()
	c.setAuthExchange(nil)
	c.state.setPhase(Connecting)

	if err := c.tr.establish(); err != nil {
		c.state.setPhase(Disconnected)
		return connErrorf("establishing connection: %v", err)
	}

	c.sendInit()

	deadline := time.NewTimer(connectTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(connectPoll)
	defer tick.Stop()

	for {
		select {
		case denial := <-c.denialChannel():
			return denial

		case <-deadline.C:
			phase := c.state.Phase()
			glog.Errorf("connect timed out in phase %v", phase)
			c.Disconnect()
			return connErrorf("connection timed out in phase %v", phase)

		case <-tick.C:
			if reason, code, ok := c.state.Denied(); ok {
				return &ConnError{Reason: "Access denied: " + reason, Code: code}
			}
			if c.state.Phase() >= Joined {
				glog.Info("connected and ready")
				return nil
			}
		}
	}
}

// Disconnect tears the session down and resets the observable state.
// Disconnecting a client that is not connected is a no-op.
func (c *Client) Disconnect() {
	c.tr.close()
	c.state.Reset()
	c.setAuthExchange(nil)
}

// SendChatMessage sends a chat line. It refuses (returning false)
// before authentication completes.
func (c *Client) SendChatMessage(text string) bool {
	if !c.state.Authenticated() {
		glog.Warning("not sending chat message: not authenticated")
		return false
	}
	cmd, err := lnet.ChatMessageCommand(text)
	if err != nil {
		glog.Errorf("encoding chat message: %v", err)
		return false
	}
	return c.sendPacket(cmd)
}

// SendFormspecResponse answers a server form. It refuses (returning
// false) before authentication completes.
func (c *Client) SendFormspecResponse(formname string, fields map[string]string) bool {
	if !c.state.Authenticated() {
		glog.Warning("not sending formspec response: not authenticated")
		return false
	}
	cmd, err := lnet.FormspecResponseCommand(formname, fields)
	if err != nil {
		glog.Errorf("encoding formspec response: %v", err)
		return false
	}
	return c.sendPacket(cmd)
}

// SetAllowBareCommands accepts the legacy unframed command encoding
// from the server. It is protocol-version dependent; leave it off
// unless the server is known to emit bare commands, since any stray
// two-byte datagram would otherwise be taken for one. Call before
// Connect.
func (c *Client) SetAllowBareCommands(v bool) {
	c.tr.setAllowBare(v)
}

// RegisterFormspecHandler subscribes to forms shown under the given
// name. All handlers registered for a name run for each such form.
func (c *Client) RegisterFormspecHandler(formname string, h FormspecHandler) {
	c.dispatch.registerFormspecHandler(formname, h)
}

// RegisterChatMessageHandler subscribes to inbound chat. Handlers run
// in registration order until one returns true.
func (c *Client) RegisterChatMessageHandler(h ChatMessageHandler) {
	c.dispatch.registerChatMessageHandler(h)
}

// sendPacket frames and sends one command payload over the transport.
func (c *Client) sendPacket(payload []byte) bool {
	return c.tr.send(payload)
}

func (c *Client) sendInit() {
	glog.V(2).Infof("sending INIT for %q", c.playername)
	c.sendPacket(lnet.InitCommand(c.playername, c.password))
}

// sendInit2 runs after AUTH_ACCEPT: it requests game data and
// immediately declares the client ready.
func (c *Client) sendInit2() {
	glog.V(2).Info("sending INIT2")
	if c.sendPacket(lnet.Init2Command()) {
		c.state.setPhase(Joining)
		c.sendClientReady()
	}
}

func (c *Client) sendClientReady() {
	glog.V(2).Infof("sending CLIENT_READY (%s)", versionString)
	c.sendPacket(lnet.ClientReadyCommand(versionString))
}

// sendGotBlocks acknowledges the node definition transfer.
func (c *Client) sendGotBlocks() {
	glog.V(2).Info("sending GOTBLOCKS")
	c.sendPacket(lnet.GotBlocksCommand(0, 0, 0))
}

// startSRPAuth creates the SRP exchange and opens it with our public
// value A.
func (c *Client) startSRPAuth() error {
	exchange, err := srp.New(c.playername, c.password)
	if err != nil {
		return err
	}
	c.setAuthExchange(exchange)

	username, bytesA := exchange.Begin()
	cmd, err := lnet.SRPBytesACommand(bytesA)
	if err != nil {
		return err
	}
	glog.V(2).Infof("starting SRP for %q (A: %d bytes)", username, len(bytesA))
	c.sendPacket(cmd)
	return nil
}

// sendFirstSRP registers a new account with freshly generated verifier
// material.
func (c *Client) sendFirstSRP() error {
	exchange, err := srp.New(c.playername, c.password)
	if err != nil {
		return err
	}
	salt, verifier, emptyPassword, err := exchange.RegistrationMaterial()
	if err != nil {
		return err
	}
	cmd, err := lnet.FirstSRPCommand(salt, verifier, emptyPassword)
	if err != nil {
		return err
	}
	glog.V(2).Infof("sending FIRST_SRP for %q", c.playername)
	c.sendPacket(cmd)
	return nil
}

// authExchange returns the in-progress SRP exchange, if any. It lives
// from HELLO until the session key is established or the attempt fails.
func (c *Client) authExchange() *srp.Exchange {
	c.srpMu.Lock()
	defer c.srpMu.Unlock()
	return c.srp
}

func (c *Client) setAuthExchange(e *srp.Exchange) {
	c.srpMu.Lock()
	defer c.srpMu.Unlock()
	c.srp = e
}

// The denial channel hands an access denial from the network goroutine
// (where the handler runs) to the caller blocked in Connect. It is
// buffered so the handler never blocks, and recreated per attempt.
func (c *Client) resetDenialChannel() {
	c.denialMu.Lock()
	defer c.denialMu.Unlock()
	c.denialCh = make(chan *ConnError, 1)
}

func (c *Client) denialChannel() chan *ConnError {
	c.denialMu.Lock()
	defer c.denialMu.Unlock()
	return c.denialCh
}

func (c *Client) publishDenial(e *ConnError) {
	select {
	case c.denialChannel() <- e:
	default:
	}
}
