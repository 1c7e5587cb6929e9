package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	lnet "badc0de.net/pkg/go-luanti/net"
)

const (
	handshakeTimeout  = 5 * time.Second
	receiveTimeout    = 1 * time.Second
	keepAliveInterval = 2 * time.Second
	// disconnectGrace gives the disconnect control packet a moment on
	// the wire before the socket goes away.
	disconnectGrace = 200 * time.Millisecond
	// splitSendPacing spaces out chunks of a split send so a burst does
	// not overrun the server's receive buffer.
	splitSendPacing = 10 * time.Millisecond

	recvBufSize = 4096
)

// transporter is what the orchestrator needs from the UDP layer.
type transporter interface {
	establish() error
	send(payload []byte) bool
	setAllowBare(v bool)
	close()
}

// conn owns the UDP socket and the background receive / keep-alive
// goroutine. It frames outbound command payloads (splitting the large
// ones), acks and reassembles inbound reliable traffic, and hands every
// complete command to the dispatcher.
type conn struct {
	host string
	port int

	state   *State
	process func(cmd uint16, data []byte)

	// allowBare accepts the legacy unframed command encoding from the
	// server. Live servers frame everything; keep this off unless
	// talking to a transport known to emit bare commands.
	allowBare bool

	mu   sync.Mutex // guards sock lifecycle
	sock *net.UDPConn

	splits *splitPool

	stop chan struct{}
	grp  *errgroup.Group
}

func newConn(host string, port int, state *State, process func(cmd uint16, data []byte)) *conn {
	return &conn{
		host:    host,
		port:    port,
		state:   state,
		process: process,
		splits:  newSplitPool(),
	}
}

// setAllowBare toggles acceptance of the legacy unframed command
// encoding. Only call before establish.
func (c *conn) setAllowBare(v bool) {
	c.allowBare = v
}

// establish opens the socket, performs the raw handshake and starts the
// background loop. The server answers the handshake with at least 14
// bytes carrying our assigned peer id; anything less, or a timeout, is
// a connection failure with no retry at this layer.
func (c *conn) establish() error {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		return errors.Wrapf(err, "resolving %s:%d", c.host, c.port)
	}

	sock, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return errors.Wrap(err, "opening UDP socket")
	}
	glog.V(2).Infof("bound to local address %s", sock.LocalAddr())

	if err := sock.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		sock.Close()
		return errors.Wrap(err, "setting handshake deadline")
	}
	if _, err := sock.Write(lnet.EncodeHandshake()); err != nil {
		sock.Close()
		return errors.Wrap(err, "sending handshake")
	}
	c.state.countSent()

	buf := make([]byte, 1024)
	n, err := sock.Read(buf)
	if err != nil {
		sock.Close()
		return errors.Wrap(err, "waiting for handshake reply")
	}
	c.state.countReceived()
	glog.V(3).Infof("handshake reply: % x", buf[:n])

	if n < 14 {
		sock.Close()
		return fmt.Errorf("handshake reply of %d bytes, want at least 14", n)
	}

	// A framed reply carries the peer id inside a reliable SET_PEER_ID
	// control packet (offset 12); an unframed one right after a 4-byte
	// prefix.
	var peerID uint16
	if be32(buf[0:4]) == lnet.ProtocolID {
		peerID = be16(buf[12:14])
	} else {
		peerID = be16(buf[4:6])
	}
	c.state.setPeerID(peerID)
	glog.V(2).Infof("assigned peer id %d", peerID)

	c.mu.Lock()
	c.sock = sock
	c.stop = make(chan struct{})
	c.grp = &errgroup.Group{}
	c.mu.Unlock()

	c.state.setConnected(true)
	c.grp.Go(c.loop)
	return nil
}

// send frames and transmits one command payload, choosing the single
// packet or the split encoding by size. It returns false when not
// connected or when the socket write fails.
func (c *conn) send(payload []byte) bool {
	peerID, ok := c.state.PeerID()
	if !ok || !c.state.Connected() {
		glog.Warning("dropping send: not connected or no peer id yet")
		return false
	}

	if len(payload) > lnet.MaxOriginalPayload {
		return c.sendSplit(peerID, payload)
	}

	pkt, err := lnet.EncodeReliableOriginal(peerID, c.state.nextSeq(), payload)
	if err != nil {
		glog.Errorf("framing packet: %v", err)
		return false
	}
	return c.write(pkt)
}

func (c *conn) sendSplit(peerID uint16, payload []byte) bool {
	chunks := chunkPayload(payload, lnet.MaxSplitChunk)
	if len(chunks) > 65535 {
		glog.Errorf("payload of %d bytes needs %d chunks, max 65535", len(payload), len(chunks))
		return false
	}

	splitSeq := c.state.nextSplitSeq()
	glog.V(2).Infof("splitting %d byte payload into %d chunks (series %d)", len(payload), len(chunks), splitSeq)

	for i, chunk := range chunks {
		pkt, err := lnet.EncodeReliableSplit(peerID, c.state.nextSeq(), splitSeq, uint16(len(chunks)), uint16(i), chunk)
		if err != nil {
			glog.Errorf("framing split chunk %d/%d: %v", i+1, len(chunks), err)
			return false
		}
		if !c.write(pkt) {
			glog.Errorf("sending split chunk %d/%d failed", i+1, len(chunks))
			return false
		}
		time.Sleep(splitSendPacing)
	}
	return true
}

// chunkPayload slices payload into chunks of at most size bytes. The
// chunks alias the payload array.
func chunkPayload(payload []byte, size int) [][]byte {
	var chunks [][]byte
	for len(payload) > size {
		chunks = append(chunks, payload[:size])
		payload = payload[size:]
	}
	return append(chunks, payload)
}

// write transmits one already framed datagram.
func (c *conn) write(pkt []byte) bool {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return false
	}
	if _, err := sock.Write(pkt); err != nil {
		glog.Errorf("socket write: %v", err)
		return false
	}
	c.state.countSent()
	return true
}

// close stops the background loop and closes the socket. Unless access
// was denied (the server already considers us gone) an established
// connection says goodbye with a disconnect control packet. Closing an
// already closed conn is a no-op.
func (c *conn) close() {
	c.mu.Lock()
	sock := c.sock
	stop := c.stop
	grp := c.grp
	c.sock = nil
	c.stop = nil
	c.grp = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	if sock != nil {
		peerID, hasPeer := c.state.PeerID()
		_, _, denied := c.state.Denied()
		if c.state.Connected() && hasPeer && !denied {
			glog.V(2).Info("sending disconnect")
			if _, err := sock.Write(lnet.EncodeDisconnect(peerID)); err != nil {
				glog.Errorf("sending disconnect: %v", err)
			} else {
				c.state.countSent()
				time.Sleep(disconnectGrace)
			}
		}
		sock.Close()
	}

	if grp != nil {
		grp.Wait()
	}

	c.state.setConnected(false)
	sent, received := c.state.Stats()
	glog.V(2).Infof("connection closed; %d packets sent, %d received", sent, received)
}

// loop is the background goroutine: it receives datagrams with a short
// deadline so it can interleave keep-alive pings, and opportunistically
// purges stale split series on every keep-alive tick.
func (c *conn) loop() error {
	lastKeepAlive := time.Now()
	buf := make([]byte, recvBufSize)

	for {
		c.mu.Lock()
		sock := c.sock
		stop := c.stop
		c.mu.Unlock()
		if sock == nil {
			return nil
		}
		select {
		case <-stop:
			return nil
		default:
		}

		if now := time.Now(); now.Sub(lastKeepAlive) >= keepAliveInterval {
			if peerID, ok := c.state.PeerID(); ok && c.state.Connected() {
				if _, err := sock.Write(lnet.EncodeKeepAlive(peerID)); err != nil {
					glog.Errorf("sending keep-alive: %v", err)
				} else {
					c.state.countSent()
					glog.V(3).Info("sent keep-alive")
				}
			}
			c.splits.purge(now)
			lastKeepAlive = now
		}

		if err := sock.SetReadDeadline(time.Now().Add(receiveTimeout)); err != nil {
			glog.Errorf("setting receive deadline: %v", err)
			return nil
		}
		n, err := sock.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-stop:
			default:
				glog.V(2).Infof("receive loop ending: %v", err)
			}
			return nil
		}

		c.state.countReceived()
		c.handleDatagram(buf[:n])
	}
}

func (c *conn) handleDatagram(data []byte) {
	pkt := lnet.Parse(data, c.allowBare)
	if pkt == nil {
		glog.V(2).Infof("dropping unparseable datagram: % x", data)
		return
	}

	switch p := pkt.(type) {
	case *lnet.ReliablePacket:
		// Ack first: the server retransmits anything unacked, and the
		// handler below may take a while.
		c.sendAck(p.Channel, p.Seq)
		switch payload := p.Payload.(type) {
		case *lnet.OriginalPayload:
			c.process(payload.Cmd, payload.Data)
		case *lnet.SplitPayload:
			if data, done := c.splits.add(payload, time.Now()); done && len(data) >= 2 {
				c.process(be16(data[0:2]), data[2:])
			}
		case *lnet.ControlPayload:
			c.handleControl(payload.Ctrl, payload.Data)
		}

	case *lnet.ControlPacket:
		c.handleControl(p.Ctrl, p.Data)

	case *lnet.AckPacket:
		glog.V(3).Infof("server acked seq %d", p.Seq)

	case *lnet.DirectCommand:
		c.process(p.Cmd, p.Data)
	}
}

func (c *conn) handleControl(ctrl lnet.ControlType, data []byte) {
	switch ctrl {
	case lnet.ControlSetPeerID:
		if len(data) >= 2 {
			// The server may renumber us mid-session.
			old, _ := c.state.PeerID()
			id := be16(data[0:2])
			c.state.setPeerID(id)
			glog.V(2).Infof("peer id updated from %d to %d", old, id)
		}
	case lnet.ControlPing, lnet.ControlAck:
		// Liveness only.
	case lnet.ControlDisco:
		glog.V(2).Info("server sent disconnect control")
	}
}

func (c *conn) sendAck(channel uint8, seq uint16) {
	peerID, ok := c.state.PeerID()
	if !ok {
		return
	}
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return
	}
	if _, err := sock.Write(lnet.EncodeAck(peerID, channel, seq)); err != nil {
		glog.Errorf("sending ack for seq %d: %v", seq, err)
		return
	}
	c.state.countSent()
	glog.V(3).Infof("acked seq %d on channel %d", seq, channel)
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
