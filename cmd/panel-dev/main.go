// Terminal driver for developing menus without the hardware: keys are
// typed as commands, the display frame prints as text.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/spq"

	"github.com/machkit/panel/hardware/text_display"
	"github.com/machkit/panel/helpers/cli"
	"github.com/machkit/panel/log2"
	"github.com/machkit/panel/menu"
	"github.com/machkit/panel/state"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	flagConfig := flag.String("config", "", "panel.hcl; empty = built-in demo menu")
	flag.Parse()
	log.SetFlags(log2.LInteractiveFlags)

	sections := demoSections()
	uiRoot, uiTimeout := "main", 0
	rows, cols := 4, 20
	if *flagConfig != "" {
		cfg := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
		sections = cfg.Menu
		uiRoot = cfg.UI.Root
		uiTimeout = cfg.UI.TimeoutSec
		if cfg.Display.Rows > 0 {
			rows, cols = cfg.Display.Rows, cfg.Display.Cols
		}
	}

	dev := text_display.NewMockDevicer(cols, rows)
	display, err := text_display.NewTextDisplay(&text_display.Config{}, dev, log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	queue, err := menu.NewScriptQueue(spq.OnlyForTesting,
		menu.DispatchFunc(func(script string) error {
			fmt.Printf(">> script: %s\n", script)
			return nil
		}), log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	m := menu.NewManager(log, menu.ManagerConfig{
		Display:    display,
		Queue:      queue,
		Root:       uiRoot,
		TimeoutSec: uiTimeout,
	})
	if err = m.AddSections(sections); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	start := time.Now()
	m.RegisterProvider("status", menu.StatusFunc(func(now time.Time) map[string]interface{} {
		return map[string]interface{}{
			"ready":  true,
			"uptime": now.Sub(start).Seconds(),
			"speed":  100.0,
			"temp":   21.5,
		}
	}))

	if err = m.Begin(time.Now()); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	show(m, display, dev)

	exec := func(line string) {
		line = strings.TrimSpace(line)
		now := time.Now()
		switch line {
		case "":
		case "help":
			fmt.Print(usage)
		case "u", "up":
			m.Up(false)
		case "U":
			m.Up(true)
		case "d", "down":
			m.Down(false)
		case "D":
			m.Down(true)
		case "s", "select":
			m.Select()
		case "b", "back":
			m.Back()
		case "c", "cancel":
			m.CancelEdit()
		case "t", "tick":
			m.Tick(now)
		case "T":
			for i := 0; i < 5; i++ {
				m.Tick(now)
			}
		case "q", "quit":
			m.Exit()
			queue.Close()
			fmt.Println("bye")
			os.Exit(0)
		default:
			fmt.Printf("unknown command %q, try help\n", line)
			return
		}
		show(m, display, dev)
	}
	cli.MainLoop(log, exec, complete, nil)
}

const usage = `commands:
  u/d   up/down (U/D fast)
  s     select/press
  b     back
  c     cancel edit
  t     one 200ms tick (T = 5 ticks, one second)
  q     quit
`

func show(m *menu.Manager, display *text_display.TextDisplay, dev *text_display.MockDevicer) {
	if !m.IsRunning() {
		fmt.Println("(menu stopped, 's' to start)")
		return
	}
	if err := display.Render(m.RenderLines(time.Now())); err != nil {
		log.Errorf("render err=%v", err)
	}
	frame := dev.String()
	border := strings.Repeat("-", len(strings.SplitN(frame, "\n", 2)[0])+2)
	fmt.Println("+" + border + "+")
	for _, line := range strings.Split(frame, "\n") {
		fmt.Println("| " + line + " |")
	}
	fmt.Println("+" + border + "+")
}

func complete(d prompt.Document) []prompt.Suggest {
	return prompt.FilterHasPrefix([]prompt.Suggest{
		{Text: "up"}, {Text: "down"}, {Text: "select"}, {Text: "back"},
		{Text: "cancel"}, {Text: "tick"}, {Text: "quit"}, {Text: "help"},
	}, d.GetWordBeforeCursor(), true)
}

// demoSections is a small menu exercising most item kinds.
func demoSections() []menu.Section {
	return []menu.Section{
		{Name: "main", Type: "list", Title: "Main", HideBack: true,
			Items: "main.status\nmain.speed\nmain.control\nmain.about"},
		{Name: "main.status", Type: "item", Title: "Up: {0:%6.1f}s", Parameter: "status.uptime"},
		{Name: "main.speed", Type: "input", Title: "Speed: {0:%3.0f}%%",
			Parameter: "status.speed", Script: "set_speed {0:%.0f}",
			InputMin: 0, InputMax: 200, InputStep: 5, InputStepFast: 25},
		{Name: "main.control", Type: "list", Title: "Control",
			Items: "main.control.run,main.control.stop"},
		{Name: "main.control.run", Type: "command", Title: "Run", Script: "start"},
		{Name: "main.control.stop", Type: "command", Title: "Stop", Script: "stop",
			Action: "back"},
		{Name: "main.about", Type: "view", Title: "About",
			Items:   "main.about.temp",
			Content: "panel-dev\nT: {0}"},
		{Name: "main.about.temp", Type: "item", Title: "{0:%.1f}C", Parameter: "status.temp"},
	}
}
