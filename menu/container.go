package menu

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Container is an Item holding child items. Populate rebuilds the full
// child list, Update refreshes the enabled subset.
type Container interface {
	Item
	Populate(ancestors []string) error
	Update()
	Len() int
	At(i int) Item
	Index(item Item) int
	EnterScript() string
	LeaveScript() string
}

// namesAsList accepts namespaces separated by commas and/or newlines.
func namesAsList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == '\t' || r == ' '
	})
}

type containerBase struct {
	element
	declared    []string
	hideBack    bool
	hideTitle   bool
	enterScript string
	leaveScript string

	allItems []Item
	items    []Item
}

func (self *containerBase) initContainer(m *Manager, sec *Section) {
	self.initElement(m, sec)
	self.declared = namesAsList(sec.Items)
	self.hideBack = sec.HideBack
	self.hideTitle = sec.HideTitle
	self.enterScript = sec.EnterScript
	self.leaveScript = sec.LeaveScript
}

func (self *containerBase) EnterScript() string { return self.enterScript }
func (self *containerBase) LeaveScript() string { return self.leaveScript }

func (self *containerBase) IsReadonly() bool { return false }

// Populate rebuilds allItems: the back entry, then declared children.
// Child containers are populated recursively, so unknown references
// and containment cycles anywhere in the subtree surface right here.
func (self *containerBase) Populate(ancestors []string) error {
	self.allItems = self.allItems[:0]
	if !self.hideBack {
		self.allItems = append(self.allItems, newBackCommand(self.m, self))
	}
	for _, name := range self.declared {
		item, err := self.m.LookupItem(name)
		if err != nil {
			return errors.Annotatef(err, "menu %s items", self.namespace)
		}
		if c, ok := item.(Container); ok {
			if name == self.namespace || containsString(ancestors, name) {
				return errors.NotValidf("menu %s: recursive containment of %s", self.namespace, name)
			}
			if err = c.Populate(append(ancestors, self.namespace)); err != nil {
				return errors.Trace(err)
			}
		}
		self.allItems = append(self.allItems, item)
	}
	self.Update()
	return nil
}

func (self *containerBase) Update() {
	self.items = self.items[:0]
	for _, item := range self.allItems {
		if c, ok := item.(Container); ok && isInline(c) {
			c.Update()
		}
		if item.IsEnabled() {
			self.items = append(self.items, item)
		}
	}
}

func (self *containerBase) Len() int { return len(self.items) }

func (self *containerBase) At(i int) Item {
	if i < 0 || i >= len(self.items) {
		return nil
	}
	return self.items[i]
}

func (self *containerBase) Index(item Item) int {
	for i, it := range self.items {
		if it == item {
			return i
		}
	}
	return -1
}

// isInline reports containers rendered as a row of their parent
// instead of as their own screen.
func isInline(c Container) bool {
	switch c.(type) {
	case *Group, *Cycler:
		return true
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// backCommand is the synthetic first row returning to the parent list.
type backCommand struct {
	element
	parent *containerBase
}

func newBackCommand(m *Manager, parent *containerBase) *backCommand {
	self := &backCommand{parent: parent}
	self.m = m
	self.namespace = parent.namespace + "..back"
	self.cursor = DefaultCursor
	return self
}

func (self *backCommand) IsEnabled() bool  { return true }
func (self *backCommand) IsReadonly() bool { return false }

func (self *backCommand) Render(selected bool) string {
	if self.parent.hideTitle {
		return "[..]"
	}
	return "[..] " + self.parent.renderTitle()
}

func (self *backCommand) Press() { self.m.Back() }

// List is the ordinary vertical menu screen.
type List struct {
	containerBase
}

var _ Container = new(List)

func NewList(m *Manager, sec *Section) *List {
	self := &List{}
	self.initContainer(m, sec)
	return self
}

func (self *List) Render(selected bool) string {
	return self.renderName(self.renderTitle(), selected, self.IsScrollable())
}

// Group renders its children inline on one row and lets the user walk
// non-readonly children without leaving the parent list.
type Group struct {
	containerBase
	sep      string
	active   bool
	selected int
}

var _ Container = new(Group)

func NewGroup(m *Manager, sec *Section) *Group {
	self := &Group{sep: " ", selected: -1}
	self.initContainer(m, sec)
	self.hideBack = true
	return self
}

func (self *Group) IsEnabled() bool {
	return self.element.IsEnabled() && self.Len() > 0
}

func (self *Group) IsEditing() bool {
	for _, item := range self.items {
		if item.IsEditing() {
			return true
		}
	}
	return false
}

func (self *Group) IsReadonly() bool {
	for _, item := range self.items {
		if !item.IsReadonly() {
			return false
		}
	}
	return true
}

func (self *Group) Heartbeat(now time.Time) {
	self.heartbeat(now, self.IsEditing(), nil)
	for _, item := range self.items {
		item.Heartbeat(now)
	}
}

// Render joins child renders; the active child blinks: fast while
// editing, slow while merely selected.
func (self *Group) Render(selected bool) string {
	parts := make([]string, 0, len(self.items))
	for i, item := range self.items {
		s := item.Render(false)
		if selected && self.active && i == self.selected && !self.blinkState(item) {
			s = strings.Repeat(" ", len(s))
		}
		parts = append(parts, s)
	}
	return self.renderName(strings.Join(parts, self.sep), selected, false)
}

func (self *Group) blinkState(item Item) bool {
	if item.IsEditing() {
		return self.m.BlinkFastState()
	}
	return self.m.BlinkSlowState()
}

func (self *Group) IsActive() bool { return self.active }

func (self *Group) Current() Item {
	if !self.active {
		return nil
	}
	return self.At(self.selected)
}

// Activate selects the first non-readonly child. Returns false when
// every child is readonly.
func (self *Group) Activate() bool {
	self.Update()
	for i, item := range self.items {
		if !item.IsReadonly() {
			self.active = true
			self.selected = i
			return true
		}
	}
	return false
}

func (self *Group) Deactivate() {
	if cur := self.Current(); cur != nil {
		if in, ok := cur.(*Input); ok {
			in.StopEditing(false)
		}
	}
	self.active = false
	self.selected = -1
}

// Move walks to the next (dir>0) or previous non-readonly child.
// Walking past either end deactivates the group.
func (self *Group) Move(dir int) {
	if !self.active {
		return
	}
	for i := self.selected + dir; i >= 0 && i < len(self.items); i += dir {
		if !self.items[i].IsReadonly() {
			self.selected = i
			return
		}
	}
	self.Deactivate()
}

// Cycler shows one enabled child at a time, advancing every interval
// seconds. Purely presentational.
type Cycler struct {
	containerBase
	interval int
	curSec   int
	curIdx   int
}

var _ Container = new(Cycler)

func NewCycler(m *Manager, sec *Section) *Cycler {
	self := &Cycler{interval: sec.Interval}
	if self.interval <= 0 {
		self.interval = 1
	}
	self.initContainer(m, sec)
	self.hideBack = true
	return self
}

func (self *Cycler) IsEnabled() bool {
	return self.element.IsEnabled() && self.Len() > 0
}

func (self *Cycler) Heartbeat(now time.Time) {
	self.heartbeat(now, false, self.secondTick)
	if cur := self.At(self.curIdx); cur != nil {
		cur.Heartbeat(now)
	}
}

func (self *Cycler) secondTick(now time.Time) {
	self.curSec++
	if self.curSec >= self.interval {
		self.curSec = 0
		self.Update()
		if n := len(self.items); n > 0 {
			self.curIdx = (self.curIdx + 1) % n
		} else {
			self.curIdx = 0
		}
	}
}

func (self *Cycler) Render(selected bool) string {
	if self.curIdx >= len(self.items) {
		self.curIdx = 0
	}
	s := ""
	if cur := self.At(self.curIdx); cur != nil {
		s = cur.Render(false)
	}
	return self.renderName(s, selected, false)
}

// RuntimeItem is one provider-supplied entry of a Dynamic list.
type RuntimeItem struct {
	Title  string
	Script string
}

// RuntimeItemFunc supplies the current entries, called on Populate
// from the logic context.
type RuntimeItemFunc func() []RuntimeItem

// Dynamic is a List whose tail is rebuilt from a runtime provider on
// every entry, e.g. files on removable storage.
type Dynamic struct {
	List
	provider string
}

var _ Container = new(Dynamic)

func NewDynamic(m *Manager, sec *Section) *Dynamic {
	self := &Dynamic{provider: sec.Provider}
	self.initContainer(m, sec)
	return self
}

func (self *Dynamic) Populate(ancestors []string) error {
	if err := self.containerBase.Populate(ancestors); err != nil {
		return errors.Trace(err)
	}
	fun := self.m.runtimeProvider(self.provider)
	if fun == nil {
		return errors.NotFoundf("menu %s: runtime provider '%s'", self.namespace, self.provider)
	}
	for i, ri := range fun() {
		sec := &Section{
			Name:   fmt.Sprintf("%s.%d", self.namespace, i),
			Title:  ri.Title,
			Script: ri.Script,
			Width:  self.width,
			Scroll: self.scroll,
		}
		self.allItems = append(self.allItems, NewCommand(self.m, sec))
	}
	self.Update()
	return nil
}
