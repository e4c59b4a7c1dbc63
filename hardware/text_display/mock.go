package text_display

import (
	"strings"
	"sync"
)

// MockDevicer records frames for tests and the terminal dev driver.
type MockDevicer struct {
	mu     sync.Mutex
	cols   int
	rows   int
	grid   [][]byte
	flushn int
}

var _ Devicer = new(MockDevicer)

func NewMockDevicer(cols, rows int) *MockDevicer {
	m := &MockDevicer{cols: cols, rows: rows}
	m.grid = make([][]byte, rows)
	for i := range m.grid {
		m.grid[i] = make([]byte, cols)
	}
	m.Clear()
	return m
}

func (self *MockDevicer) Dimensions() (int, int) { return self.cols, self.rows }

func (self *MockDevicer) Clear() {
	self.mu.Lock()
	for _, row := range self.grid {
		for i := range row {
			row[i] = ' '
		}
	}
	self.mu.Unlock()
}

func (self *MockDevicer) WriteText(row, col int, text []byte) {
	self.mu.Lock()
	if row >= 0 && row < self.rows && col >= 0 && col < self.cols {
		copy(self.grid[row][col:], text)
	}
	self.mu.Unlock()
}

func (self *MockDevicer) Flush() error {
	self.mu.Lock()
	self.flushn++
	self.mu.Unlock()
	return nil
}

func (self *MockDevicer) FlushCount() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.flushn
}

// String formats the current frame, rows joined with newlines.
func (self *MockDevicer) String() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	lines := make([]string, self.rows)
	for i, row := range self.grid {
		lines[i] = string(row)
	}
	return strings.Join(lines, "\n")
}
