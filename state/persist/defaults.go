package persist

import (
	"encoding/json"
	"sync"
)

// Defaults holds per-item default values keyed by namespace path,
// surviving process restarts through Persist.
type Defaults struct {
	mu sync.Mutex
	m  map[string]float64

	Persist Persist
}

func NewDefaults() *Defaults {
	return &Defaults{m: make(map[string]float64, 16)}
}

func (d *Defaults) Get(namespace string) (float64, bool) {
	d.mu.Lock()
	v, ok := d.m[namespace]
	d.mu.Unlock()
	return v, ok
}

func (d *Defaults) Set(namespace string, value float64) {
	d.mu.Lock()
	d.m[namespace] = value
	d.mu.Unlock()
}

func (d *Defaults) MarshalBinary() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return json.Marshal(d.m)
}

func (d *Defaults) UnmarshalBinary(b []byte) error {
	m := make(map[string]float64, 16)
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	d.mu.Lock()
	d.m = m
	d.mu.Unlock()
	return nil
}
