package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/machkit/panel/hardware/buttons"
	"github.com/machkit/panel/hardware/input"
	"github.com/machkit/panel/hardware/text_display"
	"github.com/machkit/panel/helpers"
	"github.com/machkit/panel/log2"
	"github.com/machkit/panel/state/persist"
	"github.com/machkit/panel/tele"
)

type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Log      *log2.Log
	Tele     *tele.Tele
	Defaults *persist.Defaults

	// RemoteScripts carries scripts arriving over tele into whoever
	// dispatches them. Overflow is dropped with an error log.
	RemoteScripts chan string

	Hardware struct {
		Buttons *buttons.Registry
		Input   *input.Dispatch
		board   atomic.Value // *buttons.Board
		display atomic.Value // *text_display.TextDisplay
	}

	lk sync.Mutex
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error state.NewContext log=nil")
	}
	g := &Global{
		Alive:         alive.NewAlive(),
		Log:           log,
		Tele:          &tele.Tele{},
		RemoteScripts: make(chan string, 16),
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g) //nolint:staticcheck
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg

	if g.Config.Persist.Root == "" {
		g.Config.Persist.Root = "./tmp-panel-db"
		g.Log.Errorf("config: persist.root=empty changed=%s", g.Config.Persist.Root)
	}
	g.Log.Debugf("config: persist.root=%s", g.Config.Persist.Root)

	// tele is the remote error reporting mechanism, init before anything else
	if err := g.Tele.Init(g.Log, g.Config.Tele, g.onRemoteScript); err != nil {
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)
	g.Tele.State(tele.StateBoot)

	errs := make([]error, 0)

	g.Defaults = persist.NewDefaults()
	err := g.Defaults.Persist.Init("defaults", g.Defaults, g.Config.Persist.Root, true, g.Log)
	if err == nil {
		err = g.Defaults.Persist.Load()
	}
	if err != nil {
		g.Error(err)
		errs = append(errs, err)
	}

	g.Hardware.Buttons = buttons.NewRegistry(g.Log, 0)
	g.Hardware.Input = input.NewDispatch(g.Log, g.Alive.StopChan())

	return helpers.FoldErrors(errs)
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	if err := g.Init(ctx, cfg); err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

// Board lazily opens the SPI link to the pin-sampler board and
// registers it with the button registry under the default board name.
func (g *Global) Board() (*buttons.Board, error) {
	if x := g.Hardware.board.Load(); x != nil {
		return x.(*buttons.Board), nil
	}

	g.lk.Lock()
	defer g.lk.Unlock()
	if x := g.Hardware.board.Load(); x != nil {
		return x.(*buttons.Board), nil
	}

	bc := &g.Config.Buttons
	if bc.Spi == "" {
		return nil, errors.NotValidf("config: buttons.spi is not set")
	}
	blog := g.Log.Clone(log2.LInfo)
	if bc.LogDebug {
		blog.SetLevel(log2.LDebug)
	}
	board, err := buttons.NewBoard("", bc.Spi, bc.NotifyPinChip, bc.NotifyPin, blog)
	if err != nil {
		return nil, errors.Annotatef(err, "config: buttons=%v", bc)
	}
	board.SetStateHandler(func(now time.Time, oid, remoteAck byte, batch []byte) {
		g.Hardware.Buttons.HandleState(board.Name, now, oid, remoteAck, batch)
	})
	g.Hardware.Buttons.AddBoard(board.Name, board)
	g.Hardware.board.Store(board)
	return board, nil
}

// Display returns the shared text display. Built without a device:
// the hardware or terminal driver attaches one via SetDevice.
func (g *Global) Display() (*text_display.TextDisplay, error) {
	if x := g.Hardware.display.Load(); x != nil {
		return x.(*text_display.TextDisplay), nil
	}

	g.lk.Lock()
	defer g.lk.Unlock()
	if x := g.Hardware.display.Load(); x != nil {
		return x.(*text_display.TextDisplay), nil
	}

	dc := &g.Config.Display
	d, err := text_display.NewTextDisplay(&text_display.Config{
		Codepage: dc.Codepage,
		Cols:     dc.Cols,
		Rows:     dc.Rows,
	}, nil, g.Log)
	if err != nil {
		return nil, errors.Annotatef(err, "config: display=%v", dc)
	}
	g.Hardware.display.Store(d)
	return d, nil
}

func (g *Global) MustDisplay() *text_display.TextDisplay {
	d, err := g.Display()
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
	return d
}

// InputSources builds the configured non-board input sources.
func (g *Global) InputSources() ([]input.Source, error) {
	sources := make([]input.Source, 0, 1)
	ic := &g.Config.Buttons.DevInputEvent
	if ic.Enable {
		if ic.Device == "" {
			return nil, errors.NotValidf("config: buttons.dev_input_event.device is not set")
		}
		src, err := input.NewDevInputEventSource(ic.Device)
		if err != nil {
			return nil, errors.Annotatef(err, "config: dev_input_event=%s", ic.Device)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func (g *Global) onRemoteScript(script string) {
	select {
	case g.RemoteScripts <- script:
	default:
		g.Log.Errorf("remote script queue full, dropped %q", script)
	}
}
