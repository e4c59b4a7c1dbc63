// Package buttons turns periodically sampled pin state from a remote
// sampler board into deduplicated logical button edge events.
package buttons

import (
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/machkit/panel/log2"
)

const GroupMaxPins = 8

// Callback receives the extracted bit value of one logical button
// after any of its bits changed.
type Callback func(t time.Time, state byte)

// Acker confirms received sample counts back to the board.
// Acknowledgement must be idempotent under retransmission.
type Acker interface {
	Ack(oid, count byte) error
}

type Pin struct {
	Board  string
	Line   string
	Pullup bool
	Invert bool
}

// ParsePin understands "[board:]name" with optional ^ (pull-up) and
// ! (invert) prefixes, e.g. "^!PA3" or "aux:^PB1".
func ParsePin(s string) (Pin, error) {
	p := Pin{}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		p.Board = s[:i]
		s = s[i+1:]
		if strings.ContainsAny(p.Board, " \t,^!:") {
			return Pin{}, errors.NotValidf("board='%s'", p.Board)
		}
	}
	for len(s) > 0 {
		if s[0] == '^' {
			p.Pullup = true
		} else if s[0] == '!' {
			p.Invert = true
		} else {
			break
		}
		s = s[1:]
	}
	if s == "" || strings.ContainsAny(s, " \t,^!:") {
		return Pin{}, errors.NotValidf("pin='%s'", s)
	}
	p.Line = s
	return p, nil
}

func ParsePins(commaList string) ([]Pin, error) {
	parts := strings.Split(commaList, ",")
	pins := make([]Pin, 0, len(parts))
	for _, part := range parts {
		p, err := ParsePin(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, nil
}

type binding struct {
	mask  byte
	shift byte
	cb    Callback
}

// Group is up to 8 pins sampled together on one board.
// ackCount runs unbounded locally; the wire carries it mod 256.
type Group struct {
	log        *log2.Log
	Oid        byte
	Board      string
	Pins       []Pin
	acker      Acker
	events     chan<- Sample
	stop       <-chan struct{}
	invert     byte
	ackCount   uint32
	lastSample byte
	bindings   []binding
}

// Sample is one raw group snapshot marshaled into the logic context.
type Sample struct {
	Group *Group
	Time  time.Time
	State byte
}

func (self *Group) bits() int { return len(self.Pins) }

func (self *Group) register(pins []Pin, cb Callback) {
	var mask byte
	shift := byte(len(self.Pins))
	for _, p := range pins {
		if p.Invert {
			self.invert |= 1 << uint(len(self.Pins))
		}
		mask |= 1 << uint(len(self.Pins))
		self.Pins = append(self.Pins, p)
	}
	self.bindings = append(self.bindings, binding{mask: mask, shift: shift, cb: cb})
}

// HandleState reconstructs genuinely new samples from a possibly
// late/duplicated batch. remoteAck is the board's acknowledged count mod 256.
func (self *Group) HandleState(now time.Time, remoteAck byte, batch []byte) {
	// expand remote ack from 8 bits
	ackDiff := int(uint8(self.ackCount) - remoteAck)
	if ackDiff&0x80 != 0 {
		ackDiff -= 0x100
	}
	msgAckCount := int(self.ackCount) - ackDiff
	newCount := msgAckCount + len(batch) - int(self.ackCount)
	if newCount <= 0 {
		// late or duplicate delivery, no new information
		return
	}
	newSamples := batch
	if newCount < len(batch) {
		newSamples = batch[len(batch)-newCount:]
	}
	if err := self.acker.Ack(self.Oid, byte(newCount)); err != nil {
		self.log.Errorf("buttons oid=%d ack err=%v", self.Oid, err)
	}
	self.ackCount += uint32(newCount)
	for _, raw := range newSamples {
		select {
		case self.events <- Sample{Group: self, Time: now, State: raw}:
		case <-self.stop:
			return
		}
	}
}

// Dispatch runs registered callbacks for every changed bit range.
// Must be called only from the single logic context.
func (self *Group) Dispatch(t time.Time, raw byte) {
	cur := raw ^ self.invert
	changed := cur ^ self.lastSample
	for _, b := range self.bindings {
		if changed&b.mask != 0 {
			b.cb(t, (cur&b.mask)>>b.shift)
		}
	}
	self.lastSample = cur
}

type boardState struct {
	acker  Acker
	groups []*Group
}

// Registry allocates button groups per board and owns the bounded
// hand-off channel into the logic context.
type Registry struct {
	log    *log2.Log
	events chan Sample
	stop   chan struct{}
	boards map[string]*boardState
	oidSeq byte
}

func NewRegistry(log *log2.Log, queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Registry{
		log:    log,
		events: make(chan Sample, queueSize),
		stop:   make(chan struct{}),
		boards: make(map[string]*boardState, 1),
	}
}

func (self *Registry) AddBoard(name string, acker Acker) {
	if _, ok := self.boards[name]; ok {
		panic("code error duplicate board name=" + name)
	}
	self.boards[name] = &boardState{acker: acker}
}

// Register binds a logical button of one or more pins to a callback.
// All pins must live on the same board; a full group forces a new one.
func (self *Registry) Register(pins []Pin, cb Callback) (*Group, error) {
	if len(pins) == 0 {
		return nil, errors.NotValidf("register: empty pin list")
	}
	if len(pins) > GroupMaxPins {
		return nil, errors.NotValidf("register: %d pins > group max %d", len(pins), GroupMaxPins)
	}
	boardName := pins[0].Board
	for _, p := range pins[1:] {
		if p.Board != boardName {
			return nil, errors.NotValidf("button pins must be on same board: %s vs %s", boardName, p.Board)
		}
	}
	bs, ok := self.boards[boardName]
	if !ok {
		return nil, errors.NotFoundf("board '%s'", boardName)
	}
	var g *Group
	if n := len(bs.groups); n > 0 {
		last := bs.groups[n-1]
		if last.bits()+len(pins) <= GroupMaxPins {
			g = last
		}
	}
	if g == nil {
		g = &Group{
			log:    self.log,
			Oid:    self.oidSeq,
			Board:  boardName,
			acker:  bs.acker,
			events: self.events,
			stop:   self.stop,
		}
		self.oidSeq++
		bs.groups = append(bs.groups, g)
	}
	g.register(pins, cb)
	return g, nil
}

func (self *Registry) Groups(board string) []*Group {
	if bs, ok := self.boards[board]; ok {
		return bs.groups
	}
	return nil
}

// Events is the only cross-context boundary: board read loops produce,
// the single logic goroutine consumes and calls Sample.Group.Dispatch.
func (self *Registry) Events() <-chan Sample { return self.events }

func (self *Registry) Stop() { close(self.stop) }

// HandleState routes a board state frame to the owning group.
func (self *Registry) HandleState(board string, now time.Time, oid, remoteAck byte, batch []byte) {
	bs, ok := self.boards[board]
	if !ok {
		self.log.Errorf("buttons state from unknown board=%s", board)
		return
	}
	for _, g := range bs.groups {
		if g.Oid == oid {
			g.HandleState(now, remoteAck, batch)
			return
		}
	}
	self.log.Errorf("buttons state board=%s unknown oid=%d", board, oid)
}
