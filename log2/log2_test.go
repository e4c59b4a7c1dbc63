package log2

import (
	"bytes"
	"fmt"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFilter(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(0)
	l.Debugf("hidden")
	l.Infof("shown num=%d", 1)
	assert.Equal(t, "shown num=1\n", buf.String())

	buf.Reset()
	l.SetLevel(LAll)
	l.Debugf("now visible")
	assert.Equal(t, "debug: now visible\n", buf.String())
}

func TestNilSafe(t *testing.T) {
	t.Parallel()

	var l *Log
	l.SetLevel(LDebug)
	l.SetFlags(log.Lshortfile)
	l.Debugf("no panic")
	l.Errorf("no panic either")
	assert.False(t, l.Enabled(LError))
	assert.Nil(t, l.Clone(LDebug))
}

func TestErrorFunc(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LError)
	l.SetFlags(0)
	ch := make(chan error, 2)
	l.SetErrorFunc(func(e error) { ch <- e })

	exact := fmt.Errorf("one particular issue")
	l.Error(exact)
	l.Errorf("trouble var=%.1f", 3.4)
	close(ch)
	assert.Equal(t, exact, <-ch)
	assert.Equal(t, "trouble var=3.4", (<-ch).Error())
	assert.Equal(t, "error: one particular issue\nerror: trouble var=3.4\n", buf.String())
}
