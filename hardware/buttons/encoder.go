package buttons

import "time"

// fastDetent marks a rotation event "fast" when two detents in the same
// direction arrive within this window; inputs may then use step_fast.
const fastDetent = 150 * time.Millisecond

type RotateFunc func(t time.Time, fast bool)

type pendingDir byte

const (
	pendingNone pendingDir = iota
	pendingCW
	pendingCCW
)

// Encoder decodes 2-bit gray code delivered through a 2-pin button
// registration. A direction fires once per detent: on the next observed
// code after the directional one, which filters contact bounce.
type Encoder struct {
	cw      RotateFunc
	ccw     RotateFunc
	pending pendingDir
	lastCW  time.Time
	lastCCW time.Time
}

func NewEncoder(reg *Registry, pin1, pin2 Pin, cw, ccw RotateFunc) (*Encoder, error) {
	self := &Encoder{cw: cw, ccw: ccw}
	if _, err := reg.Register([]Pin{pin1, pin2}, self.callback); err != nil {
		return nil, err
	}
	return self, nil
}

func (self *Encoder) callback(t time.Time, state byte) {
	switch state {
	case 3:
		self.pending = pendingNone
	case 2:
		self.pending = pendingCCW
	case 1:
		self.pending = pendingCW
	default:
		switch self.pending {
		case pendingCW:
			fast := !self.lastCW.IsZero() && t.Sub(self.lastCW) < fastDetent
			self.lastCW = t
			self.cw(t, fast)
		case pendingCCW:
			fast := !self.lastCCW.IsZero() && t.Sub(self.lastCCW) < fastDetent
			self.lastCCW = t
			self.ccw(t, fast)
		}
		self.pending = pendingNone
	}
}
