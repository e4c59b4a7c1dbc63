package menu

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
)

// RealtimeDebounce is the quiet period after the last edit step before
// a realtime input dispatches its change script.
const RealtimeDebounce = 200 * time.Millisecond

// Text is a display-only entry. Never selectable for action.
type Text struct {
	element
}

var _ Item = new(Text)

func NewText(m *Manager, sec *Section) *Text {
	self := &Text{}
	self.initElement(m, sec)
	return self
}

func (self *Text) Render(selected bool) string {
	return self.renderName(self.renderTitle(), selected, self.IsScrollable())
}

// Command runs an action and/or emits a script when pressed.
type Command struct {
	element
	script string
	action string
}

var _ Item = new(Command)

func NewCommand(m *Manager, sec *Section) *Command {
	self := &Command{script: sec.Script, action: sec.Action}
	self.initElement(m, sec)
	return self
}

func (self *Command) IsReadonly() bool { return false }

func (self *Command) Render(selected bool) string {
	return self.renderName(self.renderTitle(), selected, self.IsScrollable())
}

// Press runs the action first, then queues the script.
func (self *Command) Press() {
	if self.action != "" {
		self.m.runAction(self, self.action)
	}
	if self.script != "" {
		self.m.queueScript(self.namespace, self.renderScript())
	}
}

func (self *Command) renderScript() string {
	return self.m.renderTemplate(self.namespace, self.script, self.params)
}

// Input edits one numeric value. value==nil exactly while not editing.
type Input struct {
	element
	script       string
	min          float64
	max          float64
	step         float64
	stepFast     float64
	reverse      bool
	realtime     bool
	persistValue bool
	readonly     [][]string

	value            *float64
	realtimePending  bool
	realtimeLastEdit *atomic_clock.Clock
}

var _ Item = new(Input)

func NewInput(m *Manager, sec *Section) (*Input, error) {
	self := &Input{
		script:           sec.Script,
		min:              sec.InputMin,
		max:              sec.InputMax,
		step:             sec.InputStep,
		stepFast:         sec.InputStepFast,
		reverse:          sec.Reverse,
		realtime:         sec.Realtime,
		persistValue:     sec.PersistValue,
		readonly:         parsePredicate(sec.Readonly),
		realtimeLastEdit: atomic_clock.New(),
	}
	self.initElement(m, sec)
	if self.step <= 0 {
		return nil, errors.NotValidf("menu input %s: input_step=%f", sec.Name, self.step)
	}
	if self.stepFast <= 0 {
		self.stepFast = self.step
	}
	if self.min > self.max {
		return nil, errors.NotValidf("menu input %s: min=%f > max=%f", sec.Name, self.min, self.max)
	}
	return self, nil
}

func (self *Input) IsEditing() bool { return self.value != nil }

func (self *Input) IsReadonly() bool {
	if len(self.readonly) == 0 {
		return false
	}
	return self.m.evalPredicate(self.namespace, self.readonly)
}

func (self *Input) Cursor() byte {
	if self.IsEditing() {
		return DefaultEditCursor
	}
	return self.element.Cursor()
}

func (self *Input) Heartbeat(now time.Time) {
	self.heartbeat(now, self.IsEditing(), nil)
}

// Render substitutes the live edit value for the first parameter while
// editing, so the same title template shows both states.
func (self *Input) Render(selected bool) string {
	values := self.m.paramValues(self.namespace, self.params)
	if self.value != nil && len(values) > 0 {
		values[0] = *self.value
	}
	s := self.m.renderValues(self.namespace, self.title, values)
	return self.renderName(s, selected, self.IsScrollable())
}

func (self *Input) Value() (float64, bool) {
	if self.value == nil {
		return 0, false
	}
	return *self.value, true
}

func (self *Input) clamp(v float64) float64 {
	if v < self.min {
		return self.min
	}
	if v > self.max {
		return self.max
	}
	return v
}

// StartEditing captures the current parameter value. With no live
// parameter a persisted default may seed the edit instead.
func (self *Input) StartEditing() bool {
	if self.IsEditing() || self.IsReadonly() {
		return false
	}
	values := self.m.paramValues(self.namespace, self.params)
	if len(values) > 0 {
		if f, ok := asFloat(values[0]); ok {
			v := self.clamp(f)
			self.value = &v
			return true
		}
	}
	if self.persistValue && self.m.defaults != nil {
		if f, ok := self.m.defaults.Get(self.namespace); ok {
			v := self.clamp(f)
			self.value = &v
			return true
		}
	}
	self.m.log.Errorf("menu input %s: no numeric value to edit", self.namespace)
	return false
}

// StopEditing leaves edit mode. commit=true dispatches the change
// script and stores the persisted default; false discards.
func (self *Input) StopEditing(commit bool) {
	if !self.IsEditing() {
		return
	}
	final := *self.value
	self.value = nil
	self.realtimePending = false
	if !commit {
		return
	}
	self.dispatchChange(final)
	if self.persistValue && self.m.defaults != nil {
		self.m.defaults.Set(self.namespace, final)
		if err := self.m.defaults.Persist.Store(); err != nil {
			self.m.log.Errorf("menu input %s: persist err=%v", self.namespace, errors.Trace(err))
		}
	}
}

// Up/Down honor reverse; fast selects step_fast.
func (self *Input) Up(fast bool) {
	if self.reverse {
		self.decValue(fast)
	} else {
		self.incValue(fast)
	}
}

func (self *Input) Down(fast bool) {
	if self.reverse {
		self.incValue(fast)
	} else {
		self.decValue(fast)
	}
}

func (self *Input) incValue(fast bool) { self.applyDelta(self.delta(fast)) }
func (self *Input) decValue(fast bool) { self.applyDelta(-self.delta(fast)) }

func (self *Input) delta(fast bool) float64 {
	if fast {
		return self.stepFast
	}
	return self.step
}

func (self *Input) applyDelta(d float64) {
	if !self.IsEditing() {
		return
	}
	next := self.clamp(*self.value + d)
	if next == *self.value {
		return
	}
	*self.value = next
	if self.realtime {
		self.realtimePending = true
		self.realtimeLastEdit.SetNow()
	}
}

// RealtimeTick dispatches the pending change script once the edit has
// been quiet long enough. Called from the manager tick.
func (self *Input) RealtimeTick(now time.Time) {
	if !self.IsEditing() || !self.realtimePending {
		return
	}
	if atomic_clock.Since(self.realtimeLastEdit) < RealtimeDebounce {
		return
	}
	self.realtimePending = false
	self.dispatchChange(*self.value)
}

func (self *Input) dispatchChange(v float64) {
	if self.script == "" {
		return
	}
	values := self.m.paramValues(self.namespace, self.params)
	if len(values) == 0 {
		values = make([]interface{}, 1)
	}
	values[0] = v
	self.m.queueScript(self.namespace, self.m.renderValues(self.namespace, self.script, values))
}
