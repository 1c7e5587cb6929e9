package client

import (
	"sort"
	"sync"
)

// Phase is the connection state machine value. It only ever advances
// within one connection attempt; the only way back is a reset.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Authenticating
	Authenticated
	Joining
	Joined
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	}
	return "invalid"
}

// Position is a player position in node units.
type Position struct {
	X, Y, Z float64
}

// BlockPos addresses one map block.
type BlockPos struct {
	X, Y, Z int16
}

// seqInit is where the reliable sequence counter starts. Deliberately
// close to the wrap boundary so the 65535→0 wrap happens within the
// first packets of every session.
const seqInit = 65500

// State holds everything shared between the network goroutine and the
// caller. All access goes through the mutex; each field keeps a single
// writer (the network goroutine for everything the dispatcher touches,
// the caller for resets).
type State struct {
	mu sync.Mutex

	phase         Phase
	connected     bool
	authenticated bool
	peerID        uint16
	hasPeerID     bool

	denied       bool
	deniedReason string
	deniedCode   int

	seq      uint16
	splitSeq uint16

	packetsSent     uint64
	packetsReceived uint64
	lastCommand     uint16

	autoRespawn bool

	players    map[string]struct{}
	blocks     map[BlockPos][]byte
	playerPos  Position
	timeOfDay  float64
	timeSpeed  float32
	nodeDefLen int
	hasNodeDef bool
}

func newState() *State {
	s := &State{}
	s.resetLocked()
	return s
}

func (s *State) resetLocked() {
	s.phase = Disconnected
	s.connected = false
	s.authenticated = false
	s.peerID = 0
	s.hasPeerID = false
	s.denied = false
	s.deniedReason = ""
	s.deniedCode = 0
	s.seq = seqInit
	s.splitSeq = 0
	s.packetsSent = 0
	s.packetsReceived = 0
	s.lastCommand = 0
	s.autoRespawn = true
	s.players = make(map[string]struct{})
	s.blocks = make(map[BlockPos][]byte)
	s.playerPos = Position{}
	s.timeOfDay = 0
	s.timeSpeed = 0
	s.nodeDefLen = 0
	s.hasNodeDef = false
}

// Reset returns the state to its initial values for a new connection
// attempt.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Phase returns the current connection phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// setPhase advances the state machine. Transitions are refused once
// access has been denied, and the phase never moves backwards.
func (s *State) setPhase(p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied || p < s.phase {
		return false
	}
	s.phase = p
	return true
}

func (s *State) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *State) setConnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
	if !v {
		s.authenticated = false
	}
}

func (s *State) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *State) setAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
}

// PeerID returns the server-assigned peer id, if one was assigned yet.
func (s *State) PeerID() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID, s.hasPeerID
}

// setPeerID installs (or mid-session replaces) the peer id.
func (s *State) setPeerID(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = id
	s.hasPeerID = true
}

// recordDenial stores the terminal access denial. Only the first one
// per connection attempt sticks; the return value says whether this
// call was it.
func (s *State) recordDenial(reason string, code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return false
	}
	s.denied = true
	s.deniedReason = reason
	s.deniedCode = code
	s.phase = Disconnected
	return true
}

// Denied reports the recorded access denial, if any.
func (s *State) Denied() (reason string, code int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deniedReason, s.deniedCode, s.denied
}

// nextSeq returns the sequence number for the next outbound reliable
// packet, wrapping modulo 65536.
func (s *State) nextSeq() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	s.seq++
	return seq
}

// nextSplitSeq returns the series number for the next outbound split
// message, wrapping modulo 65536.
func (s *State) nextSplitSeq() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.splitSeq
	s.splitSeq++
	return seq
}

func (s *State) countSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsSent++
}

func (s *State) countReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsReceived++
}

// Stats returns the diagnostic packet counters.
func (s *State) Stats() (sent, received uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetsSent, s.packetsReceived
}

func (s *State) setLastCommand(cmd uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommand = cmd
}

// AutoRespawn reports whether the client answers the death screen by
// itself.
func (s *State) AutoRespawn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRespawn
}

// SetAutoRespawn toggles automatic respawning on the death screen.
func (s *State) SetAutoRespawn(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRespawn = v
}

// Players returns the connected player names, sorted.
func (s *State) Players() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.players))
	for name := range s.players {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// setPlayers replaces the whole roster.
func (s *State) setPlayers(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = make(map[string]struct{}, len(names))
	for _, n := range names {
		s.players[n] = struct{}{}
	}
}

// addPlayers unions names into the roster.
func (s *State) addPlayers(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.players[n] = struct{}{}
	}
}

// removePlayers drops only the named entries.
func (s *State) removePlayers(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.players, n)
	}
}

// PlayerPosition returns the last position the server reported for us.
func (s *State) PlayerPosition() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerPos
}

func (s *State) setPlayerPosition(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerPos = p
}

// TimeOfDay returns the in-game time scaled to [0, 1).
func (s *State) TimeOfDay() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeOfDay
}

// TimeSpeed returns the day length speed multiplier.
func (s *State) TimeSpeed() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeSpeed
}

func (s *State) setTime(dayTime float64, speed float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeOfDay = dayTime
	s.timeSpeed = speed
}

// BlockData returns the raw block blob last received for the given
// block position.
func (s *State) BlockData(pos BlockPos) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[pos]
	return b, ok
}

func (s *State) setBlockData(pos BlockPos, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[pos] = data
}

// NodeDefSize returns the decompressed node definition size, or 0 if
// none were received yet.
func (s *State) NodeDefSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeDefLen
}

// markNodeDefs records the decompressed node definition size. The first
// call per connection returns true; the join acknowledgment must only
// be sent then.
func (s *State) markNodeDefs(size int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeDefLen = size
	if s.hasNodeDef {
		return false
	}
	s.hasNodeDef = true
	return true
}
