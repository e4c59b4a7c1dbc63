// Package persist binds in-memory state to crash-safe storage.
package persist

import (
	"encoding"
	"io"
	"path/filepath"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"

	"github.com/machkit/panel/log2"
)

type Stater interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

type Persist struct {
	sync.Mutex
	log     *log2.Log
	tag     string
	target  Stater
	storage storage
}

func (p *Persist) Init(tag string, target Stater, root string, enabled bool, log *log2.Log) error {
	p.tag = tag
	p.log = log
	if !enabled {
		p.log.Debugf("persist %s disabled", p.tag)
		return nil
	}
	if root == "" {
		return errors.Errorf("persist %s enabled but root=empty", p.tag)
	}
	if target == nil {
		panic("code error persist target nil")
	}
	p.target = target
	p.storage = extremofile.New(extremofile.Config{
		Dir:      filepath.Join(root, tag),
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return nil
}

func (p *Persist) Load() error {
	if p.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	b, err := p.storage.Read()
	if err != nil {
		if extremofile.IsCorrupt(err) {
			p.log.Errorf("persist %s load corrupt err=%v", p.tag, err)
			return nil
		}
		return errors.Annotatef(err, "persist %s load", p.tag)
	}
	if b == nil {
		return nil
	}
	return errors.Annotatef(p.target.UnmarshalBinary(b), "persist %s unmarshal", p.tag)
}

func (p *Persist) Store() error {
	if p.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	b, err := p.target.MarshalBinary()
	if err != nil {
		return errors.Annotatef(err, "persist %s marshal", p.tag)
	}
	p.Lock()
	defer p.Unlock()
	_, err = p.storage.Write(b)
	return errors.Annotatef(err, "persist %s write", p.tag)
}
