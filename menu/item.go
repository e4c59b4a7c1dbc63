package menu

import (
	"strings"
	"time"
)

const (
	DefaultCursor     byte = '>'
	DefaultEditCursor byte = '*'
)

// Item is one addressable menu entry. Render and all mutating calls
// happen only inside the manager's logic context.
type Item interface {
	Namespace() string
	Init()
	Render(selected bool) string
	Heartbeat(now time.Time)
	IsEnabled() bool
	IsEditing() bool
	IsReadonly() bool
	IsScrollable() bool
	Cursor() byte
}

// element carries the shared per-item state: identity, title template,
// enable predicate and the ping-pong scroll machine.
type element struct {
	m         *Manager
	namespace string
	title     string
	cursor    byte
	width     int
	scroll    bool
	enable    [][]string
	params    []string

	lastHeartbeat bool
	scrollActive  bool
	scrollDir     int
	scrollOffs    int
	scrollDiff    int
}

func (self *element) initElement(m *Manager, sec *Section) {
	self.m = m
	self.namespace = sec.Name
	self.title = sec.Title
	self.cursor = DefaultCursor
	if sec.Cursor != "" {
		self.cursor = sec.Cursor[0]
	}
	self.width = sec.Width
	self.scroll = sec.Scroll
	self.enable = parsePredicate(sec.Enable)
	self.params = wordsAsList(sec.Parameter, ",")
}

func (self *element) Namespace() string { return self.namespace }
func (self *element) Init()             {}
func (self *element) IsEditing() bool   { return false }
func (self *element) IsReadonly() bool  { return true }
func (self *element) IsScrollable() bool {
	return true
}
func (self *element) Cursor() byte { return self.cursor }

func (self *element) IsEnabled() bool {
	return self.m.evalPredicate(self.namespace, self.enable)
}

func (self *element) Heartbeat(now time.Time) {
	self.heartbeat(now, false, nil)
}

// heartbeat drives per-second work: scroll advance and the optional
// secondTick hook. Editing pauses both.
func (self *element) heartbeat(now time.Time, editing bool, secondTick func(time.Time)) {
	state := now.Unix()&1 == 1
	if self.lastHeartbeat != state {
		self.lastHeartbeat = state
		if !editing {
			if secondTick != nil {
				secondTick(now)
			}
			self.updateScroll()
		}
	}
}

// renderTitle expands the title template against current parameters.
func (self *element) renderTitle() string {
	if self.title == "" {
		return self.namespace
	}
	return self.m.renderTemplate(self.namespace, self.title, self.params)
}

// renderName applies fixed width and, while selected, ping-pong scroll.
func (self *element) renderName(s string, selected, scrollable bool) string {
	if self.width > 0 {
		self.scrollDiff = len(s) - self.width
		if selected && self.scroll && scrollable && self.scrollDiff > 0 {
			return self.nameScroll(s)
		}
		self.clearScroll()
		if len(s) > self.width {
			return s[:self.width]
		}
		return s + strings.Repeat(" ", self.width-len(s))
	}
	self.clearScroll()
	return s
}

func (self *element) clearScroll() {
	self.scrollActive = false
	self.scrollDir = 0
	self.scrollDiff = 0
	self.scrollOffs = 0
}

func (self *element) updateScroll() {
	switch {
	case self.scrollActive && self.scrollDir == 0 && self.scrollDiff > 0:
		self.scrollDir = 1
		self.scrollOffs = 0
	case self.scrollActive && self.scrollDir != 0 && self.scrollDiff > 0:
		self.scrollOffs += self.scrollDir
		if self.scrollOffs >= self.scrollDiff {
			self.scrollDir = -1
		} else if self.scrollOffs <= 0 {
			self.scrollDir = 1
		}
	default:
		self.clearScroll()
	}
}

func (self *element) nameScroll(s string) string {
	if !self.scrollActive {
		self.scrollActive = true
		self.scrollDir = 0
		self.scrollOffs = 0
	}
	end := self.scrollOffs + self.width
	if end > len(s) {
		end = len(s)
	}
	out := s[self.scrollOffs:end]
	if len(out) < self.width {
		out += strings.Repeat(" ", self.width-len(out))
	}
	return out
}
