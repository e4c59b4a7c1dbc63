package input

import (
	"io"
	"os"

	"github.com/temoto/inputevent-go"
)

const DevInputEventTag = "dev-input-event"

// Logical keys shared by all sources. Values follow Linux evdev codes
// so a plain USB keypad works without a mapping table.
const (
	KeyEsc   Key = 1
	KeyBack  Key = 14 // backspace
	KeyEnter Key = 28
	KeyUp    Key = 103
	KeyDown  Key = 108
)

// DevInputEventSource reads key events from a /dev/input/eventX device,
// the no-sampler-board way to drive the menu.
type DevInputEventSource struct {
	f io.ReadCloser
}

// compile-time interface compliance test
var _ Source = new(DevInputEventSource)

func NewDevInputEventSource(device string) (*DevInputEventSource, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	return &DevInputEventSource{f: f}, nil
}

func (self *DevInputEventSource) String() string { return DevInputEventTag }

func (self *DevInputEventSource) Close() error { return self.f.Close() }

func (self *DevInputEventSource) Read() (Event, error) {
	for {
		ie, err := inputevent.ReadOne(self.f)
		if err != nil {
			return Event{}, err
		}
		if ie.Type == inputevent.EV_KEY {
			return Event{
				Source: DevInputEventTag,
				Key:    Key(ie.Code),
				Up:     ie.Value == int32(inputevent.KeyStateUp),
			}, nil
		}
	}
}
