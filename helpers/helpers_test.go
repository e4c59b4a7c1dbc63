package helpers

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))

	e := FoldErrors([]error{errors.New("first"), nil, errors.New("second")})
	assert.Error(t, e)
	assert.Equal(t, "first\nsecond", e.Error())
}

func TestIntSecondDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, IntSecondDefault(0, 5*time.Second))
	assert.Equal(t, 9*time.Second, IntSecondDefault(9, 5*time.Second))
	assert.Equal(t, 200*time.Millisecond, IntMillisecondDefault(0, 200*time.Millisecond))
	assert.Equal(t, 70*time.Millisecond, IntMillisecondDefault(70, 200*time.Millisecond))
}
