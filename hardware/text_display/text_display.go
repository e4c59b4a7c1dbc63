// Package text_display adapts a raw character display device to the
// menu render loop: codepage translation, fixed rows/cols framing.
package text_display

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/paulrosania/go-charset/charset"
	_ "github.com/paulrosania/go-charset/data"

	"github.com/machkit/panel/log2"
)

const MaxWidth = 40

var spaceBytes = bytes.Repeat([]byte{' '}, MaxWidth)

// Devicer is the low-level display driver contract. The core calls it
// once per render tick only while the menu is running.
type Devicer interface {
	Clear()
	WriteText(row, col int, text []byte)
	Flush() error
	Dimensions() (cols, rows int)
}

type Config struct {
	Codepage string
	Cols     int
	Rows     int
}

type TextDisplay struct { //nolint:maligned
	log  *log2.Log
	mu   sync.Mutex
	dev  Devicer
	tr   atomic.Value // charset.Translator
	cols int
	rows int
	last []string
}

func NewTextDisplay(opt *Config, dev Devicer, log *log2.Log) (*TextDisplay, error) {
	if opt == nil {
		panic("code error nil text_display.Config")
	}
	cols, rows := opt.Cols, opt.Rows
	if dev != nil && (cols == 0 || rows == 0) {
		cols, rows = dev.Dimensions()
	}
	if cols <= 0 || rows <= 0 {
		return nil, errors.NotValidf("text_display cols=%d rows=%d", cols, rows)
	}
	if cols > MaxWidth {
		return nil, errors.NotValidf("text_display cols=%d > max=%d", cols, MaxWidth)
	}
	self := &TextDisplay{
		log:  log,
		dev:  dev,
		cols: cols,
		rows: rows,
		last: make([]string, rows),
	}
	if opt.Codepage != "" {
		if err := self.SetCodepage(opt.Codepage); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return self, nil
}

func (self *TextDisplay) Dimensions() (cols, rows int) { return self.cols, self.rows }

func (self *TextDisplay) SetCodepage(cp string) error {
	tr, err := charset.TranslatorTo(cp)
	if err != nil {
		return err
	}
	self.tr.Store(tr)
	return nil
}

func (self *TextDisplay) SetDevice(dev Devicer) {
	self.mu.Lock()
	self.dev = dev
	self.mu.Unlock()
}

func (self *TextDisplay) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()
	for i := range self.last {
		self.last[i] = ""
	}
	if self.dev != nil {
		self.dev.Clear()
		_ = self.dev.Flush()
	}
}

// Render shows exactly rows lines, each padded/truncated to cols.
// Unchanged lines are not rewritten.
func (self *TextDisplay) Render(lines []string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	for row := 0; row < self.rows; row++ {
		line := ""
		if row < len(lines) {
			line = lines[row]
		}
		if line == self.last[row] {
			continue
		}
		self.log.Debugf("display row=%d text=%q", row, line)
		self.last[row] = line
		if self.dev != nil {
			b := PadSpace(self.Translate(line), uint32(self.cols))
			self.dev.WriteText(row, 0, b[:self.cols])
		}
	}
	if self.dev != nil {
		return self.dev.Flush()
	}
	return nil
}

func (self *TextDisplay) Translate(s string) []byte {
	if len(s) == 0 {
		return spaceBytes[:0]
	}
	result := []byte(s)
	tr, ok := self.tr.Load().(charset.Translator)
	if ok && tr != nil {
		_, tb, err := tr.Translate(result, true)
		if err != nil {
			self.log.Errorf("display translate text=%q err=%v", s, err)
			return result
		}
		// translator reuses single internal buffer, make a copy
		result = append([]byte(nil), tb...)
	}
	return result
}

// returns `b` when len>=width, otherwise pads with spaces
func PadSpace(b []byte, width uint32) []byte {
	l := uint32(len(b))
	if l == 0 {
		return spaceBytes[:width]
	}
	if l >= width {
		return b
	}
	buf := make([]byte, 0, width)
	buf = append(append(buf, b...), spaceBytes[:width-l]...)
	return buf
}
