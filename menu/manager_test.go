package menu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/spq"

	"github.com/machkit/panel/hardware/text_display"
	"github.com/machkit/panel/log2"
)

type testEnv struct {
	t       testing.TB
	m       *Manager
	dev     *text_display.MockDevicer
	scripts chan string
	status  map[string]interface{}
}

func newTestEnv(t testing.TB, sections []Section, mc ManagerConfig) *testEnv {
	log := log2.NewTest(t, log2.LDebug)
	env := &testEnv{
		t:       t,
		dev:     text_display.NewMockDevicer(16, 4),
		scripts: make(chan string, 32),
		status:  make(map[string]interface{}),
	}
	d, err := text_display.NewTextDisplay(&text_display.Config{}, env.dev, log)
	require.NoError(t, err)
	q, err := NewScriptQueue(spq.OnlyForTesting, DispatchFunc(func(s string) error {
		env.scripts <- s
		return nil
	}), log)
	require.NoError(t, err)
	t.Cleanup(q.Close)
	mc.Display = d
	mc.Queue = q
	env.m = NewManager(log, mc)
	env.m.RegisterProvider("status", StatusFunc(func(time.Time) map[string]interface{} {
		return env.status
	}))
	require.NoError(t, env.m.AddSections(sections))
	return env
}

func (env *testEnv) takeScript() string {
	select {
	case s := <-env.scripts:
		return s
	case <-time.After(5 * time.Second):
		env.t.Fatal("expected a dispatched script")
		return ""
	}
}

func (env *testEnv) noScript() {
	select {
	case s := <-env.scripts:
		env.t.Fatalf("unexpected script %q", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func cmdSection(name, title string) Section {
	return Section{Name: name, Type: "command", Title: title, Script: "run " + title}
}

func TestNavigationBoundaries(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.a\nmain.b\nmain.c"},
		cmdSection("main.a", "aa"),
		cmdSection("main.b", "bb"),
		cmdSection("main.c", "cc"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	// up at first item is a no-op
	env.m.Up(false)
	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, ">aa", lines[0])

	env.m.Down(false)
	env.m.Down(false)
	env.m.Down(false) // past last item, no-op
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, []string{" aa", " bb", ">cc"}, lines)
}

func TestViewportSlide(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.0,main.1,main.2,main.3,main.4"},
		cmdSection("main.0", "i0"),
		cmdSection("main.1", "i1"),
		cmdSection("main.2", "i2"),
		cmdSection("main.3", "i3"),
		cmdSection("main.4", "i4"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	// rows=4, 5 items: selection 0..3 keeps top_row=0
	for i := 0; i < 3; i++ {
		env.m.Down(false)
	}
	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, []string{" i0", " i1", " i2", ">i3"}, lines)

	// selection 4 shifts top_row to exactly 1
	env.m.Down(false)
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, []string{" i1", " i2", " i3", ">i4"}, lines)

	// and back up slides minimally again
	for i := 0; i < 4; i++ {
		env.m.Up(false)
	}
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, []string{">i0", " i1", " i2", " i3"}, lines)
}

func TestStackPushPopRestoresSelection(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.a\nmain.sub\nmain.b"},
		cmdSection("main.a", "aa"),
		cmdSection("main.b", "bb"),
		{Name: "main.sub", Type: "list", Title: "Sub", Items: "main.a",
			EnterScript: "enter sub", LeaveScript: "leave sub"},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	env.m.Down(false) // select main.sub at index 1
	env.m.Select()
	assert.Equal(t, "enter sub", env.takeScript())
	lines := env.m.RenderLines(time.Now())
	// back entry first, home selection past it
	assert.Equal(t, "[..] Sub", lines[0][1:])
	assert.Equal(t, byte('>'), lines[1][0])

	env.m.Back()
	assert.Equal(t, "leave sub", env.takeScript())
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, []string{" aa", ">Sub", " bb"}, lines)
}

func TestBackEntryPress(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: "main.sub"},
		{Name: "main.sub", Type: "list", Title: "Sub", Items: ""},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	env.m.Select() // push sub
	env.m.Up(false)
	env.m.Select() // press [..]
	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, ">Sub", lines[0])
}

func TestRecursiveContainment(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: "main.sub"},
		{Name: "main.sub", Type: "list", Title: "Sub", Items: "main"},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})

	// the cycle sits one level down, still fatal at startup
	err := env.m.Begin(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursive containment")
	assert.False(t, env.m.IsRunning())
}

func TestValidateNestedReferences(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: "main.sub"},
		{Name: "main.sub", Type: "list", Title: "Sub", Items: "ghost.item"},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})

	err := env.m.Validate(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost.item")
	assert.False(t, env.m.IsRunning())
}

func TestPushFailureKeepsScriptStreamPaired(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.pop", LeaveScript: "leave main"},
		{Name: "main.pop", Type: "command", Title: "popper", Action: "popup dialog"},
		// not reachable from the root, so startup validation passes
		{Name: "dialog", Type: "list", Title: "Dialog", Items: "ghost.x"},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	env.m.Select() // push fails in populate, no leave/enter scripts
	env.noScript()
	assert.Equal(t, 1, len(env.m.stack))
	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, ">popper", lines[0])
}

func TestBackReselectsPoppedChild(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.opt\nmain.sub\nmain.b"},
		{Name: "main.opt", Type: "item", Title: "opt", Enable: "status.ready"},
		{Name: "main.sub", Type: "list", Title: "Sub", Items: "main.b"},
		cmdSection("main.b", "bb"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	env.status["ready"] = true
	require.NoError(t, env.m.Begin(time.Now()))

	env.m.Down(false) // select main.sub at index 1
	env.m.Select()

	// sibling above disappears while inside the child
	delete(env.status, "ready")
	env.m.UpdateParams(time.Now())

	env.m.Back()
	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, []string{">Sub", " bb"}, lines)
}

func TestPopulateIdempotent(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", Items: "main.a,main.b"},
		cmdSection("main.a", "aa"),
		cmdSection("main.b", "bb"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	env.m.UpdateParams(time.Now())

	item, err := env.m.LookupItem("main")
	require.NoError(t, err)
	c := item.(Container)
	require.NoError(t, c.Populate(nil))
	n := c.Len()
	require.NoError(t, c.Populate(nil))
	assert.Equal(t, n, c.Len())
	assert.Equal(t, 3, n) // back + 2
}

func TestEnablePredicate(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.always\nmain.ready\nmain.both"},
		{Name: "main.always", Type: "item", Title: "always"},
		{Name: "main.ready", Type: "item", Title: "ready", Enable: "status.ready"},
		{Name: "main.both", Type: "item", Title: "both",
			Enable: "status.ready, !status.error\nstatus.force"},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	// nothing set: unknown parameters are false, fail closed
	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, []string{">always"}, lines)

	env.status["ready"] = true
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, []string{">always", " ready", " both"}, lines)

	env.status["error"] = 1
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, []string{">always", " ready"}, lines)

	// second OR line rescues it
	env.status["force"] = "yes"
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, []string{">always", " ready", " both"}, lines)
}

func TestTimeoutFiresExactly(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: "main.a"},
		cmdSection("main.a", "aa"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main", TimeoutSec: 10})
	require.NoError(t, env.m.Begin(time.Now()))

	now := time.Now()
	for i := 0; i < 9; i++ {
		env.m.TimeoutTick(now)
		require.True(t, env.m.IsRunning(), "tick %d", i)
	}
	env.m.TimeoutTick(now)
	assert.False(t, env.m.IsRunning())
}

func TestTimeoutResetsOnNavigation(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: "main.a,main.b"},
		cmdSection("main.a", "aa"),
		cmdSection("main.b", "bb"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main", TimeoutSec: 10})
	require.NoError(t, env.m.Begin(time.Now()))

	now := time.Now()
	for i := 0; i < 9; i++ {
		env.m.TimeoutTick(now)
	}
	env.m.Down(false) // resets idle counter
	for i := 0; i < 9; i++ {
		env.m.TimeoutTick(now)
		require.True(t, env.m.IsRunning(), "tick %d", i)
	}
	env.m.TimeoutTick(now)
	assert.False(t, env.m.IsRunning())
}

func TestTimeoutSuppressedAtAutorunHome(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: "main.a,main.b"},
		cmdSection("main.a", "aa"),
		cmdSection("main.b", "bb"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main", Autorun: true, TimeoutSec: 2})
	require.NoError(t, env.m.Begin(time.Now()))

	now := time.Now()
	for i := 0; i < 10; i++ {
		env.m.TimeoutTick(now)
	}
	assert.True(t, env.m.IsRunning())

	// away from home the timeout applies again
	env.m.Down(false)
	env.m.TimeoutTick(now)
	env.m.TimeoutTick(now)
	assert.False(t, env.m.IsRunning())
}

func TestGroupSkipsReadonly(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: "main.grp"},
		{Name: "main.grp", Type: "group", Title: "Grp",
			Items: "main.grp.label,main.grp.go,main.grp.stop"},
		{Name: "main.grp.label", Type: "item", Title: "L:"},
		cmdSection("main.grp.go", "go"),
		cmdSection("main.grp.stop", "stop"),
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	env.m.Select() // activate group, first editable child
	item, err := env.m.LookupItem("main.grp")
	require.NoError(t, err)
	g := item.(*Group)
	require.True(t, g.IsActive())
	assert.Equal(t, "main.grp.go", g.Current().Namespace())

	env.m.Down(false)
	assert.Equal(t, "main.grp.stop", g.Current().Namespace())

	env.m.Select() // press selected child
	assert.Equal(t, "run stop", env.takeScript())

	env.m.Down(false) // past the end deactivates
	assert.False(t, g.IsActive())
}

func TestCommandActionsAndPopup(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.pop,main.quit"},
		{Name: "main.pop", Type: "command", Title: "popper", Action: "popup dialog"},
		{Name: "main.quit", Type: "command", Title: "quit", Action: "exit"},
		{Name: "dialog", Type: "list", Title: "Dialog", Items: "main.quit"},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	require.NoError(t, env.m.Begin(time.Now()))

	env.m.Select() // popup dialog
	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, "[..] Dialog", lines[0][1:])

	env.m.Back()
	lines = env.m.RenderLines(time.Now())
	assert.Equal(t, ">popper", lines[0])

	env.m.Down(false)
	env.m.Select() // exit action
	assert.False(t, env.m.IsRunning())
}

func TestViewContent(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "view", Title: "Status",
			Items:   "main.temp,main.state",
			Content: "T={0}\nS={1}",
			Script:  "refresh"},
		{Name: "main.temp", Type: "item", Title: "{0:%.0f}", Parameter: "status.temp"},
		{Name: "main.state", Type: "item", Title: "{0}", Parameter: "status.state"},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})
	env.status["temp"] = 21.7
	env.status["state"] = "idle"
	require.NoError(t, env.m.Begin(time.Now()))

	lines := env.m.RenderLines(time.Now())
	assert.Equal(t, []string{"T=22", "S=idle"}, lines)

	env.m.Select() // view-level press
	assert.Equal(t, "refresh", env.takeScript())
}

func TestBlinkDutyCycles(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true, Items: ""},
	}
	env := newTestEnv(t, sections, ManagerConfig{Root: "main"})

	now := time.Now()
	fast := make([]bool, 0, len(blinkFastSeq))
	for i := 0; i < len(blinkFastSeq); i++ {
		fast = append(fast, env.m.BlinkFastState())
		env.m.Tick(now)
	}
	assert.Equal(t, []bool{true, true, false, false}, fast)

	// slow cycle duty: 4 of 7 on
	on := 0
	for i := 0; i < len(blinkSlowSeq); i++ {
		if env.m.BlinkSlowState() {
			on++
		}
		env.m.Tick(now)
	}
	assert.Equal(t, 4, on)
}
