package menu

import (
	"time"
)

// View is a container rendered as free-form content lines instead of
// one row per child. Children are positional values for the content
// templates; there is no row selection, up/down scroll the content.
type View struct {
	containerBase
	content []string
	script  string
	action  string
}

var _ Container = new(View)

func NewView(m *Manager, sec *Section) *View {
	self := &View{
		content: linesAsList(sec.Content),
		script:  sec.Script,
		action:  sec.Action,
	}
	self.initContainer(m, sec)
	self.hideBack = true
	return self
}

func (self *View) Heartbeat(now time.Time) {
	self.heartbeat(now, false, nil)
	for _, item := range self.items {
		item.Heartbeat(now)
	}
}

func (self *View) Render(selected bool) string {
	return self.renderName(self.renderTitle(), selected, self.IsScrollable())
}

// RenderContent expands every content line against the children's
// rendered names.
func (self *View) RenderContent() []string {
	self.Update()
	values := make([]interface{}, len(self.items))
	for i, item := range self.items {
		values[i] = item.Render(false)
	}
	out := make([]string, 0, len(self.content))
	for _, line := range self.content {
		out = append(out, self.m.renderValues(self.namespace, line, values))
	}
	return out
}

// Press runs the view-level action and script, since there is no row
// selection to forward to.
func (self *View) Press() {
	if self.action != "" {
		self.m.runAction(self, self.action)
	}
	if self.script != "" {
		self.m.queueScript(self.namespace, self.m.renderTemplate(self.namespace, self.script, self.params))
	}
}
