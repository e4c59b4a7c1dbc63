package input

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/machkit/panel/log2"
)

// stubSource delivers preloaded events, then blocks forever. A real
// source error path would log into t after the test body returns.
type stubSource struct {
	tag    string
	events chan Event
}

func newStubSource(tag string, events ...Event) *stubSource {
	s := &stubSource{tag: tag, events: make(chan Event, len(events))}
	for _, e := range events {
		s.events <- e
	}
	return s
}

func (s *stubSource) String() string       { return s.tag }
func (s *stubSource) Read() (Event, error) { return <-s.events, nil }

func TestDispatchDelivery(t *testing.T) {
	t.Parallel()

	// nil log: the source reader goroutine logs emits concurrently
	// with test completion
	dstop := make(chan struct{})
	d := NewDispatch(nil, dstop)
	stop := make(chan struct{})
	inch := d.SubscribeChan("consumer", stop)

	src := newStubSource("stub",
		Event{Source: "stub", Key: KeyEnter, Up: false},
		Event{Source: "stub", Key: KeyEnter, Up: true})
	go d.Run([]Source{src})

	e1 := <-inch
	assert.Equal(t, Event{Source: "stub", Key: KeyEnter, Up: false}, e1)
	e2 := <-inch
	assert.Equal(t, Event{Source: "stub", Key: KeyEnter, Up: true}, e2)
	close(dstop)
}

func TestDispatchResubscribe(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	dstop := make(chan struct{})
	d := NewDispatch(log, dstop)

	go func() {
		sub1stop := make(chan struct{})
		d.SubscribeChan("name", sub1stop)
		close(sub1stop)
		sub2stop := make(chan struct{})
		d.SubscribeChan("name", sub2stop)
		close(dstop)
	}()

	d.Run(nil)
}
