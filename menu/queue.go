package menu

import (
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"

	"github.com/machkit/panel/log2"
)

// Dispatcher executes one script outside the menu: a serial link, an
// RPC client, a test recorder. Must be safe for the single queue
// worker goroutine.
type Dispatcher interface {
	RunScript(script string) error
}

type DispatchFunc func(script string) error

func (f DispatchFunc) RunScript(script string) error { return f(script) }

// ScriptQueue contract:
// - Push blocks at most for disk write, never on the dispatcher
// - scripts are dispatched in order by a single worker
// - dispatch errors are logged and the script is dropped, the queue
//   never wedges the menu
type ScriptQueue struct {
	log      *log2.Log
	q        *spq.Queue
	alive    *alive.Alive
	dispatch Dispatcher
}

func NewScriptQueue(path string, dispatch Dispatcher, log *log2.Log) (*ScriptQueue, error) {
	if dispatch == nil {
		panic("code error must set ScriptQueue dispatcher")
	}
	q, err := spq.Open(path)
	if err != nil {
		return nil, errors.Annotate(err, "script queue")
	}
	self := &ScriptQueue{
		log:      log,
		q:        q,
		alive:    alive.NewAlive(),
		dispatch: dispatch,
	}
	self.alive.Add(1)
	go self.worker()
	return self, nil
}

func (self *ScriptQueue) Push(script string) error {
	if script == "" {
		return nil
	}
	return self.q.Push([]byte(script))
}

func (self *ScriptQueue) Close() {
	self.q.Close()
	self.alive.Stop()
	self.alive.Wait()
}

func (self *ScriptQueue) worker() {
	defer self.alive.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			script := string(box.Bytes())
			if err = self.dispatch.RunScript(script); err != nil {
				self.log.Errorf("menu queue script=%q err=%v", script, err)
			}
			if err = self.q.Delete(box); err != nil {
				self.log.Errorf("menu queue delete script=%q err=%v", script, err)
			}

		case spq.ErrClosed:
			return

		default:
			self.log.Errorf("CRITICAL menu queue err=%v", err)
			return
		}
	}
}
