// Package input is an event bus from hardware input sources into the
// single menu-logic consumer.
package input

import (
	"fmt"
	"sync"

	"github.com/juju/errors"

	"github.com/machkit/panel/log2"
)

type Key uint16

type Event struct {
	Source string
	Key    Key
	Up     bool
}

type Source interface {
	Read() (Event, error)
	String() string
}

type EventFunc func(Event)

type sub struct {
	name string
	ch   chan<- Event
	fun  EventFunc
	stop <-chan struct{}
}

type Dispatch struct {
	Log  *log2.Log
	bus  chan Event
	mu   sync.Mutex
	subs map[string]*sub
	stop <-chan struct{}
}

func NewDispatch(log *log2.Log, stop <-chan struct{}) *Dispatch {
	return &Dispatch{
		Log:  log,
		bus:  make(chan Event),
		subs: make(map[string]*sub, 8),
		stop: stop,
	}
}

func Drain(ch <-chan Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (self *Dispatch) SubscribeChan(name string, substop <-chan struct{}) chan Event {
	target := make(chan Event)
	self.safeSubscribe(&sub{name: name, ch: target, stop: substop})
	return target
}

func (self *Dispatch) SubscribeFunc(name string, fun EventFunc, substop <-chan struct{}) {
	self.safeSubscribe(&sub{name: name, fun: fun, stop: substop})
}

func (self *Dispatch) Unsubscribe(name string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if s, ok := self.subs[name]; ok {
		self.subClose(s)
	} else {
		panic("code error input sub not found name=" + name)
	}
}

func (self *Dispatch) Run(sources []Source) {
	for _, source := range sources {
		go self.readSource(source)
	}

	for {
		select {
		case event := <-self.bus:
			handled := false
			self.mu.Lock()
			for _, s := range self.subs {
				self.subFire(s, event)
				handled = true
			}
			self.mu.Unlock()
			if !handled {
				self.Log.Errorf("input is not handled event=%#v", event)
			}

		case <-self.stop:
			Drain(self.bus)
			return
		}
	}
}

func (self *Dispatch) Emit(event Event) {
	select {
	case self.bus <- event:
		self.Log.Debugf("input emit=%#v", event)
	case <-self.stop:
	}
}

func (self *Dispatch) subFire(s *sub, event Event) {
	select {
	case <-s.stop:
		self.subClose(s)
		return
	default:
	}

	if s.ch == nil && s.fun == nil {
		panic(fmt.Sprintf("input sub=%s ch=nil fun=nil", s.name))
	}
	if s.fun != nil {
		s.fun(event)
	}
	if s.ch != nil {
		select {
		case s.ch <- event:
		case <-s.stop:
			self.subClose(s)
		}
	}
}

func (self *Dispatch) subClose(s *sub) {
	if s.ch != nil {
		close(s.ch)
	}
	delete(self.subs, s.name)
}

func (self *Dispatch) safeSubscribe(s *sub) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if existing, ok := self.subs[s.name]; ok {
		select {
		case <-s.stop:
			panic("code error input subscribe already closed name=" + s.name)
		case <-existing.stop:
			self.subClose(existing)
		default:
			panic("code error input duplicate subscribe name=" + s.name)
		}
	}
	self.subs[s.name] = s
}

func (self *Dispatch) readSource(source Source) {
	tag := source.String()
	for {
		event, err := source.Read()
		if err != nil {
			err = errors.Annotatef(err, "input source=%s", tag)
			self.Log.Error(errors.ErrorStack(err))
			return
		}
		self.Emit(event)
	}
}
