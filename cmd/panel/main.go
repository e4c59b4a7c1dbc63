// Panel service binary: reads config, wires hardware inputs to the
// menu and runs until stopped.
package main

import (
	"flag"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"

	"github.com/machkit/panel/hardware/buttons"
	"github.com/machkit/panel/hardware/input"
	"github.com/machkit/panel/helpers"
	"github.com/machkit/panel/log2"
	"github.com/machkit/panel/menu"
	"github.com/machkit/panel/state"
	"github.com/machkit/panel/tele"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	flagConfig := flag.String("config", "panel.hcl", "")
	flag.Parse()

	if sdnotify("STATUS=starting") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.Info("hello")

	ctx, g := state.NewContext(log)
	cfg := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	g.MustInit(ctx, cfg)

	display := g.MustDisplay()

	queue, err := menu.NewScriptQueue(filepath.Join(cfg.Persist.Root, "scripts"),
		menu.DispatchFunc(func(script string) error {
			log.Infof("script %q", script)
			if err := g.Tele.Script(script); err != nil && !errors.IsNotValid(err) {
				return err
			}
			return nil
		}), log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	m := menu.NewManager(log, menu.ManagerConfig{
		Display:    display,
		Queue:      queue,
		Defaults:   g.Defaults,
		Root:       cfg.UI.Root,
		Autorun:    cfg.UI.Autorun,
		TimeoutSec: cfg.UI.TimeoutSec,
	})
	if err = m.AddSections(cfg.Menu); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	if err = m.Validate(time.Now()); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	if err = wireButtons(g, m); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	g.Hardware.Input.SubscribeFunc("menu", func(e input.Event) {
		if !e.Up {
			return
		}
		switch e.Key {
		case input.KeyEnter:
			m.Emit(menu.Event{Kind: menu.EventSelect})
		case input.KeyUp:
			m.Emit(menu.Event{Kind: menu.EventUp})
		case input.KeyDown:
			m.Emit(menu.Event{Kind: menu.EventDown})
		case input.KeyBack, input.KeyEsc:
			m.Emit(menu.Event{Kind: menu.EventBack})
		}
	}, g.Alive.StopChan())
	sources, err := g.InputSources()
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	go g.Hardware.Input.Run(sources)

	// remote scripts run through the same ordered queue
	go func() {
		stopch := g.Alive.StopChan()
		for {
			select {
			case <-stopch:
				return
			case script := <-g.RemoteScripts:
				if err := queue.Push(script); err != nil {
					log.Errorf("remote script err=%v", err)
				}
			}
		}
	}()

	m.Start(g.Hardware.Buttons.Events())
	g.Tele.State(tele.StateRunning)
	sdnotify(daemon.SdNotifyReady)
	log.Infof("init complete, running")

	g.Alive.Wait()
	m.Stop()
	g.Hardware.Buttons.Stop()
	queue.Close()
	g.Tele.Close()
}

// wireButtons registers configured pins with the button registry and
// arms sampling on the board.
func wireButtons(g *state.Global, m *menu.Manager) error {
	bc := &g.Config.Buttons
	if bc.ClickPin == "" && bc.BackPin == "" && bc.UpPin == "" && bc.DownPin == "" &&
		bc.KillPin == "" && bc.EncoderPins == "" {
		g.Log.Infof("buttons: no pins configured")
		return nil
	}
	board, err := g.Board()
	if err != nil {
		return errors.Trace(err)
	}
	reg := g.Hardware.Buttons

	press := func(f func()) buttons.Callback {
		return func(t time.Time, pressed byte) {
			if pressed != 0 {
				f()
			}
		}
	}
	for _, def := range []struct {
		config string
		cb     buttons.Callback
	}{
		{bc.ClickPin, press(m.Select)},
		{bc.BackPin, press(m.Back)},
		{bc.UpPin, press(func() { m.Up(false) })},
		{bc.DownPin, press(func() { m.Down(false) })},
	} {
		if def.config == "" {
			continue
		}
		pins, err := buttons.ParsePins(def.config)
		if err != nil {
			return errors.Trace(err)
		}
		if _, err = reg.Register(pins, def.cb); err != nil {
			return errors.Trace(err)
		}
	}

	if bc.KillPin != "" {
		pins, err := buttons.ParsePins(bc.KillPin)
		if err != nil {
			return errors.Trace(err)
		}
		// kill bypasses the menu
		_, err = reg.Register(pins, func(t time.Time, pressed byte) {
			if pressed != 0 {
				g.Log.Errorf("emergency stop requested")
				g.Tele.State(tele.StateShutdown)
				g.Stop()
			}
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	if bc.EncoderPins != "" {
		pins, err := buttons.ParsePins(bc.EncoderPins)
		if err != nil {
			return errors.Trace(err)
		}
		if len(pins) != 2 {
			return errors.NotValidf("encoder_pins=%s needs exactly 2 pins", bc.EncoderPins)
		}
		_, err = buttons.NewEncoder(reg, pins[0], pins[1],
			func(t time.Time, fast bool) { m.Down(fast) },
			func(t time.Time, fast bool) { m.Up(fast) })
		if err != nil {
			return errors.Trace(err)
		}
	}

	interval := helpers.IntMillisecondDefault(bc.QueryIntervalMs, buttons.DefaultQueryInterval)
	for _, grp := range reg.Groups(board.Name) {
		if err := board.ConfigureGroup(grp); err != nil {
			return errors.Trace(err)
		}
		if err := board.StartQuery(grp, interval, bc.RetransmitCount); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
