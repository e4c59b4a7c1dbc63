package buttons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEncoder(t *testing.T) (*Encoder, *[]string) {
	events := new([]string)
	cw := func(_ time.Time, fast bool) {
		s := "cw"
		if fast {
			s = "cw-fast"
		}
		*events = append(*events, s)
	}
	ccw := func(_ time.Time, fast bool) {
		s := "ccw"
		if fast {
			s = "ccw-fast"
		}
		*events = append(*events, s)
	}
	reg, _ := testRegistry(t)
	enc, err := NewEncoder(reg, Pin{Line: "2"}, Pin{Line: "3"}, cw, ccw)
	require.NoError(t, err)
	return enc, events
}

func feed(enc *Encoder, base time.Time, step time.Duration, states ...byte) {
	for i, s := range states {
		enc.callback(base.Add(time.Duration(i)*step), s)
	}
}

func TestEncoderSingleDetent(t *testing.T) {
	t.Parallel()
	base := time.Now()

	enc, events := testEncoder(t)
	feed(enc, base, time.Millisecond, 1, 1, 1, 0)
	require.Equal(t, []string{"cw"}, *events)

	enc, events = testEncoder(t)
	feed(enc, base, time.Millisecond, 2, 2, 2, 0)
	require.Equal(t, []string{"ccw"}, *events)

	enc, events = testEncoder(t)
	feed(enc, base, time.Millisecond, 3, 3, 3)
	require.Empty(t, *events)
}

func TestEncoderHomeRearm(t *testing.T) {
	t.Parallel()
	base := time.Now()

	// direction must pass through home (3) before re-arming
	enc, events := testEncoder(t)
	feed(enc, base, time.Second, 1, 0, 3, 1, 0)
	require.Equal(t, []string{"cw", "cw"}, *events)

	// 3 clears pending: no fire on following 0
	enc, events = testEncoder(t)
	feed(enc, base, time.Second, 1, 3, 0)
	require.Empty(t, *events)
}

func TestEncoderFastDetent(t *testing.T) {
	t.Parallel()
	base := time.Now()

	enc, events := testEncoder(t)
	// two detents 4ms apart: second is fast
	feed(enc, base, 2*time.Millisecond, 1, 0, 1, 0)
	require.Equal(t, []string{"cw", "cw-fast"}, *events)

	// slow turns never mark fast
	enc, events = testEncoder(t)
	feed(enc, base, time.Second, 1, 0, 1, 0)
	require.Equal(t, []string{"cw", "cw"}, *events)

	// direction change resets the fast window per direction
	enc, events = testEncoder(t)
	feed(enc, base, 2*time.Millisecond, 1, 0, 2, 0)
	require.Equal(t, []string{"cw", "ccw"}, *events)
}
