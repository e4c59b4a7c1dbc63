package menu

import (
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"

	"github.com/machkit/panel/hardware/buttons"
	"github.com/machkit/panel/hardware/text_display"
	"github.com/machkit/panel/helpers"
	"github.com/machkit/panel/log2"
	"github.com/machkit/panel/state"
	"github.com/machkit/panel/state/persist"
)

// Section is the declarative config block one item is built from.
type Section = state.MenuSection

const (
	TickDelay   = 200 * time.Millisecond
	RenderDelay = 100 * time.Millisecond
	// timeout is evaluated every timeoutTickDiv'th tick, i.e. once per second
	timeoutTickDiv = 5
)

var (
	blinkFastSeq = [...]bool{true, true, false, false}
	blinkSlowSeq = [...]bool{true, true, true, true, false, false, false}
)

type EventKind uint8

const (
	EventInvalid EventKind = iota
	EventUp
	EventDown
	EventSelect
	EventBack
)

// Event is an input edge marshaled into the manager goroutine.
type Event struct {
	Kind EventKind
	Fast bool
}

type stackEntry struct {
	c        Container
	selected int
	topRow   int
}

// Manager owns the item registry, the navigation stack and all timing.
// Except for Emit and stats, every method must be called from the
// single logic context (the Loop goroutine, or the test body).
type Manager struct { //nolint:maligned
	log      *log2.Log
	alive    *alive.Alive
	display  *text_display.TextDisplay
	queue    *ScriptQueue
	renderer Renderer
	defaults *persist.Defaults

	items     map[string]Item
	providers map[string]StatusProvider
	runtime   map[string]RuntimeItemFunc
	params    Params

	rootName   string
	autorun    bool
	timeoutSec int

	running      bool
	stack        []stackEntry
	events       chan Event
	tickCount    uint32
	blinkFastIdx int
	blinkSlowIdx int
	timer        int
	lastActivity *atomic_clock.Clock
}

type ManagerConfig struct {
	Display        *text_display.TextDisplay
	Queue          *ScriptQueue
	Renderer       Renderer // nil = FormatRenderer
	Defaults       *persist.Defaults
	Root           string
	Autorun        bool
	TimeoutSec     int
	EventQueueSize int
}

func NewManager(log *log2.Log, mc ManagerConfig) *Manager {
	if mc.Display == nil {
		panic("code error must set Manager display")
	}
	if mc.Renderer == nil {
		mc.Renderer = FormatRenderer{}
	}
	if mc.EventQueueSize <= 0 {
		mc.EventQueueSize = 16
	}
	return &Manager{
		log:          log,
		alive:        alive.NewAlive(),
		display:      mc.Display,
		queue:        mc.Queue,
		renderer:     mc.Renderer,
		defaults:     mc.Defaults,
		items:        make(map[string]Item, 32),
		providers:    make(map[string]StatusProvider, 8),
		runtime:      make(map[string]RuntimeItemFunc, 4),
		params:       Params{},
		rootName:     mc.Root,
		autorun:      mc.Autorun,
		timeoutSec:   mc.TimeoutSec,
		events:       make(chan Event, mc.EventQueueSize),
		lastActivity: atomic_clock.Now(),
	}
}

// registry

func (self *Manager) AddItem(item Item) error {
	name := item.Namespace()
	if _, ok := self.items[name]; ok {
		return errors.NotValidf("menu duplicate item name=%s", name)
	}
	self.items[name] = item
	return nil
}

func (self *Manager) LookupItem(name string) (Item, error) {
	if item, ok := self.items[name]; ok {
		return item, nil
	}
	return nil, errors.NotFoundf("menu item '%s'", name)
}

// AddSections builds and registers items from config. Load-time errors
// (unknown type, bad input bounds) are fatal to the caller.
func (self *Manager) AddSections(sections []Section) error {
	errs := make([]error, 0)
	for i := range sections {
		sec := &sections[i]
		var item Item
		var err error
		switch sec.Type {
		case "item", "":
			item = NewText(self, sec)
		case "command":
			item = NewCommand(self, sec)
		case "input":
			item, err = NewInput(self, sec)
		case "list":
			item = NewList(self, sec)
		case "group":
			item = NewGroup(self, sec)
		case "cycler":
			item = NewCycler(self, sec)
		case "dynamic":
			item = NewDynamic(self, sec)
		case "view":
			item = NewView(self, sec)
		default:
			err = errors.NotValidf("menu %s: type='%s'", sec.Name, sec.Type)
		}
		if err == nil {
			err = self.AddItem(item)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (self *Manager) RegisterProvider(name string, p StatusProvider) {
	if _, ok := self.providers[name]; ok {
		panic("code error menu duplicate provider name=" + name)
	}
	self.providers[name] = p
}

func (self *Manager) RegisterRuntimeItems(name string, fun RuntimeItemFunc) {
	if _, ok := self.runtime[name]; ok {
		panic("code error menu duplicate runtime provider name=" + name)
	}
	self.runtime[name] = fun
}

func (self *Manager) runtimeProvider(name string) RuntimeItemFunc { return self.runtime[name] }

// params / templates

func (self *Manager) UpdateParams(now time.Time) {
	p := Params{
		"screen": {
			"now":     float64(now.UnixNano()) / float64(time.Second),
			"running": self.running,
		},
	}
	for name, provider := range self.providers {
		status := provider.GetStatus(now)
		if status == nil {
			status = map[string]interface{}{}
		}
		p[name] = status
	}
	self.params = p
}

// evalPredicate: lines OR'd, words AND'd, '!' negates, unknown
// parameter is false. Empty predicate is true.
func (self *Manager) evalPredicate(ns string, pred [][]string) bool {
	if len(pred) == 0 {
		return true
	}
	for _, line := range pred {
		all := true
		for _, word := range line {
			if !self.evalWord(ns, word) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func (self *Manager) evalWord(ns, word string) bool {
	negate := false
	for strings.HasPrefix(word, "!") {
		negate = !negate
		word = word[1:]
	}
	v := false
	if lit, ok := parseBoolLiteral(word); ok {
		v = lit
	} else if f, err := strconv.ParseFloat(word, 64); err == nil {
		v = f != 0
	} else if pv, ok := self.params.Lookup(word); ok {
		v = truthy(pv)
	} else {
		self.log.Debugf("menu %s: predicate parameter '%s' unknown", ns, word)
	}
	if negate {
		return !v
	}
	return v
}

// paramValues resolves an item's parameter words against the current
// snapshot. Unknown parameters yield nil.
func (self *Manager) paramValues(ns string, words []string) []interface{} {
	if len(words) == 0 {
		return nil
	}
	values := make([]interface{}, len(words))
	for i, word := range words {
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			values[i] = f
		} else if v, ok := self.params.Lookup(word); ok {
			values[i] = v
		} else {
			self.log.Debugf("menu %s: parameter '%s' unknown", ns, word)
		}
	}
	return values
}

func (self *Manager) renderTemplate(ns, template string, words []string) string {
	return self.renderValues(ns, template, self.paramValues(ns, words))
}

// renderValues never fails the render pass: errors are logged and the
// raw template shown.
func (self *Manager) renderValues(ns, template string, values []interface{}) string {
	s, err := self.renderer.Render(template, values)
	if err != nil {
		self.log.Errorf("menu %s: render err=%v", ns, err)
		return template
	}
	return s
}

func (self *Manager) queueScript(ns, script string) {
	if script == "" {
		return
	}
	if self.queue == nil {
		self.log.Errorf("menu %s: script dropped, no queue: %q", ns, script)
		return
	}
	if err := self.queue.Push(script); err != nil {
		self.log.Errorf("menu %s: script push err=%v", ns, errors.Trace(err))
	}
}

// runAction executes a named item action: back, exit, log <msg>,
// popup <container>.
func (self *Manager) runAction(item Item, action string) {
	fields := strings.Fields(action)
	if len(fields) == 0 {
		return
	}
	ns := item.Namespace()
	switch fields[0] {
	case "back":
		self.Back()
	case "exit":
		self.Exit()
	case "log":
		self.log.Infof("menu %s: %s", ns, strings.Join(fields[1:], " "))
	case "popup":
		if len(fields) != 2 {
			self.log.Errorf("menu %s: popup needs one target", ns)
			return
		}
		target, err := self.LookupItem(fields[1])
		if err != nil {
			self.log.Errorf("menu %s: popup err=%v", ns, err)
			return
		}
		c, ok := target.(Container)
		if !ok {
			self.log.Errorf("menu %s: popup target '%s' is not a container", ns, fields[1])
			return
		}
		self.StackPush(c)
	default:
		self.log.Errorf("menu %s: unknown action '%s'", ns, fields[0])
	}
}

// timing

func (self *Manager) BlinkFastState() bool { return blinkFastSeq[self.blinkFastIdx] }
func (self *Manager) BlinkSlowState() bool { return blinkSlowSeq[self.blinkSlowIdx] }

func (self *Manager) IdleDuration() time.Duration { return atomic_clock.Since(self.lastActivity) }

func (self *Manager) touch() {
	self.timer = 0
	self.lastActivity.SetNow()
}

// Tick advances blink duty cycles, drives realtime input dispatch and,
// once per second, the idle timeout.
func (self *Manager) Tick(now time.Time) {
	self.blinkFastIdx = (self.blinkFastIdx + 1) % len(blinkFastSeq)
	self.blinkSlowIdx = (self.blinkSlowIdx + 1) % len(blinkSlowSeq)
	if in := self.editingInput(); in != nil {
		in.RealtimeTick(now)
	}
	self.tickCount++
	if self.tickCount%timeoutTickDiv == 0 {
		self.TimeoutTick(now)
	}
}

// TimeoutTick counts one qualifying second of idleness. Sitting at the
// home position of an autorun root never times out.
func (self *Manager) TimeoutTick(now time.Time) {
	if !self.running || self.timeoutSec <= 0 {
		self.timer = 0
		return
	}
	if self.atAutorunHome() {
		self.timer = 0
		return
	}
	self.timer++
	if self.timer >= self.timeoutSec {
		self.timer = 0
		self.Exit()
	}
}

func (self *Manager) atAutorunHome() bool {
	if !self.autorun || len(self.stack) != 1 {
		return false
	}
	e := &self.stack[0]
	if e.c.Namespace() != self.rootName || e.selected != self.homeIndex(e.c) {
		return false
	}
	return self.editingInput() == nil
}

// homeIndex is the initial selection: past the back entry when present.
func (self *Manager) homeIndex(c Container) int {
	if c.Len() > 1 {
		if _, ok := c.At(0).(*backCommand); ok {
			return 1
		}
	}
	if c.Len() > 0 {
		return 0
	}
	return -1
}

// lifecycle

func (self *Manager) IsRunning() bool { return self.running }

func (self *Manager) lookupRoot() (Container, error) {
	item, err := self.LookupItem(self.rootName)
	if err != nil {
		return nil, errors.Annotate(err, "menu root")
	}
	root, ok := item.(Container)
	if !ok {
		return nil, errors.NotValidf("menu root '%s' is not a container", self.rootName)
	}
	return root, nil
}

// Validate populates the whole tree reachable from the root, so broken
// item references and containment cycles fail at load instead of on
// first navigation.
func (self *Manager) Validate(now time.Time) error {
	self.UpdateParams(now)
	root, err := self.lookupRoot()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotate(root.Populate(nil), "menu root")
}

func (self *Manager) Begin(now time.Time) error {
	self.UpdateParams(now)
	root, err := self.lookupRoot()
	if err != nil {
		return errors.Trace(err)
	}
	if err = root.Populate(nil); err != nil {
		return errors.Annotate(err, "menu root")
	}
	self.running = true
	self.stack = self.stack[:0]
	self.stack = append(self.stack, stackEntry{c: root, selected: self.homeIndex(root)})
	self.timer = 0
	self.queueScript(root.Namespace(), root.EnterScript())
	return nil
}

func (self *Manager) Exit() {
	if !self.running {
		return
	}
	if in := self.editingInput(); in != nil {
		in.StopEditing(false)
	}
	if top := self.top(); top != nil {
		self.queueScript(top.c.Namespace(), top.c.LeaveScript())
	}
	self.running = false
	self.stack = self.stack[:0]
	self.display.Clear()
}

func (self *Manager) top() *stackEntry {
	if len(self.stack) == 0 {
		return nil
	}
	return &self.stack[len(self.stack)-1]
}

func (self *Manager) stackNamespaces() []string {
	out := make([]string, 0, len(self.stack))
	for i := range self.stack {
		out = append(out, self.stack[i].c.Namespace())
	}
	return out
}

func (self *Manager) currentItem() Item {
	e := self.top()
	if e == nil {
		return nil
	}
	return e.c.At(e.selected)
}

// editingInput finds the input being edited, directly selected or
// inside an active group.
func (self *Manager) editingInput() *Input {
	cur := self.currentItem()
	if g, ok := cur.(*Group); ok {
		cur = g.Current()
	}
	if in, ok := cur.(*Input); ok && in.IsEditing() {
		return in
	}
	return nil
}

// StackPush opens a container: populate first, then leave script of
// the old top, enter script, selection homed. A populate failure keeps
// the current screen and emits no scripts. Mid-edit containers keep
// their state.
func (self *Manager) StackPush(c Container) {
	if !c.IsEditing() {
		if err := c.Populate(self.stackNamespaces()); err != nil {
			self.log.Errorf("menu push %s err=%v", c.Namespace(), errors.Trace(err))
			return
		}
	}
	if old := self.top(); old != nil {
		self.queueScript(old.c.Namespace(), old.c.LeaveScript())
	}
	self.queueScript(c.Namespace(), c.EnterScript())
	self.stack = append(self.stack, stackEntry{c: c, selected: self.homeIndex(c)})
}

// StackPop closes the top container and restores the parent screen.
// Popping the root stops the menu.
func (self *Manager) StackPop() Container {
	e := self.top()
	if e == nil {
		return nil
	}
	popped := e.c
	self.queueScript(popped.Namespace(), popped.LeaveScript())
	self.stack = self.stack[:len(self.stack)-1]
	if newTop := self.top(); newTop != nil {
		self.queueScript(newTop.c.Namespace(), newTop.c.EnterScript())
		newTop.c.Update()
		// reselect the child just left; siblings may have shifted
		if idx := newTop.c.Index(popped); idx >= 0 {
			newTop.selected = idx
		}
		self.clampSelection(newTop)
	} else {
		self.running = false
		self.display.Clear()
	}
	return popped
}

func (self *Manager) clampSelection(e *stackEntry) {
	n := e.c.Len()
	if n == 0 {
		e.selected = -1
		return
	}
	if e.selected < 0 {
		e.selected = 0
	}
	if e.selected >= n {
		e.selected = n - 1
	}
}

// input handlers

// Emit marshals an event from any goroutine into the logic context.
// A full queue drops the event.
func (self *Manager) Emit(e Event) {
	select {
	case self.events <- e:
	default:
		self.log.Errorf("menu event queue full, dropped kind=%d", e.Kind)
	}
}

func (self *Manager) handleEvent(e Event) {
	switch e.Kind {
	case EventUp:
		self.Up(e.Fast)
	case EventDown:
		self.Down(e.Fast)
	case EventSelect:
		self.Select()
	case EventBack:
		self.Back()
	default:
		self.log.Errorf("menu unknown event kind=%d", e.Kind)
	}
}

func (self *Manager) Up(fast bool) {
	if !self.running {
		return
	}
	self.touch()
	e := self.top()
	if e == nil {
		return
	}
	if _, ok := e.c.(*View); ok {
		if e.topRow > 0 {
			e.topRow--
		}
		return
	}
	if in := self.editingInput(); in != nil {
		in.Up(fast)
		return
	}
	if g, ok := self.currentItem().(*Group); ok && g.IsActive() {
		g.Move(-1)
		return
	}
	if e.selected > 0 {
		e.selected--
	}
}

func (self *Manager) Down(fast bool) {
	if !self.running {
		return
	}
	self.touch()
	e := self.top()
	if e == nil {
		return
	}
	if _, ok := e.c.(*View); ok {
		e.topRow++ // clamped against content length on render
		return
	}
	if in := self.editingInput(); in != nil {
		in.Down(fast)
		return
	}
	if g, ok := self.currentItem().(*Group); ok && g.IsActive() {
		g.Move(1)
		return
	}
	if e.selected < e.c.Len()-1 {
		e.selected++
	}
}

// Select opens containers, toggles input edit, runs commands. With no
// usable selection the press is forwarded to the container itself.
func (self *Manager) Select() {
	if !self.running {
		if err := self.Begin(time.Now()); err != nil {
			self.log.Errorf("menu begin err=%v", errors.Trace(err))
		}
		return
	}
	self.touch()
	if v, ok := self.top().c.(*View); ok {
		v.Press()
		return
	}
	cur := self.currentItem()
	if g, ok := cur.(*Group); ok {
		if g.IsActive() {
			self.pressItem(g.Current())
		} else if !g.Activate() {
			self.log.Debugf("menu %s: group has no editable items", g.Namespace())
		}
		return
	}
	self.pressItem(cur)
}

func (self *Manager) pressItem(cur Item) {
	switch it := cur.(type) {
	case nil:
		// empty container, nothing to press
	case *backCommand:
		it.Press()
	case *Input:
		if it.IsEditing() {
			it.StopEditing(true)
		} else {
			it.StartEditing()
		}
	case *Command:
		it.Press()
	case Container:
		self.StackPush(it)
	default:
		// plain text item, not selectable for action
	}
}

// Back is a no-op while an input is mid-edit: the edit must be
// committed or cancelled first.
func (self *Manager) Back() {
	if !self.running {
		return
	}
	self.touch()
	if self.editingInput() != nil {
		return
	}
	if g, ok := self.currentItem().(*Group); ok && g.IsActive() {
		g.Deactivate()
		return
	}
	self.StackPop()
}

// CancelEdit discards a pending edit, or deactivates an active group.
func (self *Manager) CancelEdit() {
	if in := self.editingInput(); in != nil {
		in.StopEditing(false)
		return
	}
	if g, ok := self.currentItem().(*Group); ok && g.IsActive() {
		g.Deactivate()
	}
}

// rendering

// RenderLines produces the full frame for the current screen. The
// display pads each line to cols.
func (self *Manager) RenderLines(now time.Time) []string {
	self.UpdateParams(now)
	_, rows := self.display.Dimensions()
	e := self.top()
	if e == nil {
		return nil
	}
	e.c.Update()
	e.c.Heartbeat(now)

	if v, ok := e.c.(*View); ok {
		return self.window(e, v.RenderContent(), rows)
	}

	self.clampSelection(e)
	n := e.c.Len()
	// slide viewport minimally to keep selection visible
	if e.selected < 0 {
		e.topRow = 0
	} else if e.selected < e.topRow {
		e.topRow = e.selected
	} else if e.selected >= e.topRow+rows {
		e.topRow = e.selected - rows + 1
	}
	if e.topRow > n-rows {
		e.topRow = n - rows
	}
	if e.topRow < 0 {
		e.topRow = 0
	}

	lines := make([]string, 0, rows)
	for i := e.topRow; i < n && len(lines) < rows; i++ {
		item := e.c.At(i)
		sel := i == e.selected
		if sel {
			item.Heartbeat(now)
		}
		prefix := byte(' ')
		if sel {
			prefix = item.Cursor()
		}
		lines = append(lines, string(prefix)+item.Render(sel))
	}
	return lines
}

func (self *Manager) window(e *stackEntry, lines []string, rows int) []string {
	if e.topRow > len(lines)-rows {
		e.topRow = len(lines) - rows
	}
	if e.topRow < 0 {
		e.topRow = 0
	}
	end := e.topRow + rows
	if end > len(lines) {
		end = len(lines)
	}
	return lines[e.topRow:end]
}

func (self *Manager) renderTick(now time.Time) {
	if !self.running {
		if self.autorun && self.rootName != "" {
			if err := self.Begin(now); err != nil {
				self.log.Errorf("menu autorun err=%v", errors.Trace(err))
				self.autorun = false // do not spam every render tick
			}
		}
		if !self.running {
			return
		}
	}
	if err := self.display.Render(self.RenderLines(now)); err != nil {
		self.log.Errorf("menu display err=%v", errors.Trace(err))
	}
}

// Loop is the single logic goroutine. samples may be nil when buttons
// are wired elsewhere (tests, terminal driver).
func (self *Manager) Loop(samples <-chan buttons.Sample) {
	defer self.alive.Done()
	tick := time.NewTicker(TickDelay)
	defer tick.Stop()
	render := time.NewTicker(RenderDelay)
	defer render.Stop()
	stopch := self.alive.StopChan()

	for {
		select {
		case s := <-samples:
			s.Group.Dispatch(s.Time, s.State)

		case e := <-self.events:
			self.handleEvent(e)

		case now := <-tick.C:
			self.Tick(now)

		case now := <-render.C:
			self.renderTick(now)

		case <-stopch:
			self.Exit()
			return
		}
	}
}

func (self *Manager) Start(samples <-chan buttons.Sample) {
	self.alive.Add(1)
	go self.Loop(samples)
}

func (self *Manager) Stop() {
	self.alive.Stop()
	self.alive.Wait()
}
