package buttons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machkit/panel/log2"
)

type ackRecorder struct {
	oids   []byte
	counts []byte
}

func (a *ackRecorder) Ack(oid, count byte) error {
	a.oids = append(a.oids, oid)
	a.counts = append(a.counts, count)
	return nil
}

func testRegistry(t testing.TB) (*Registry, *ackRecorder) {
	log := log2.NewTest(t, log2.LDebug)
	reg := NewRegistry(log, 64)
	ack := &ackRecorder{}
	reg.AddBoard("", ack)
	return reg, ack
}

func mustPins(t testing.TB, s string) []Pin {
	pins, err := ParsePins(s)
	require.NoError(t, err)
	return pins
}

func drainStates(reg *Registry) []byte {
	out := []byte(nil)
	for {
		select {
		case s := <-reg.Events():
			out = append(out, s.State)
		default:
			return out
		}
	}
}

func TestParsePin(t *testing.T) {
	t.Parallel()

	p, err := ParsePin("^!aux:17")
	require.Error(t, err) // prefix flags before board name are not valid

	p, err = ParsePin("aux:^!17")
	require.NoError(t, err)
	assert.Equal(t, Pin{Board: "aux", Line: "17", Pullup: true, Invert: true}, p)

	p, err = ParsePin("^3")
	require.NoError(t, err)
	assert.Equal(t, Pin{Line: "3", Pullup: true}, p)

	_, err = ParsePin("")
	assert.Error(t, err)
	_, err = ParsePin("^")
	assert.Error(t, err)
}

func TestAckReconstruction(t *testing.T) {
	t.Parallel()

	// For any (local, remote, batch) the last newCount bytes are delivered
	// exactly once, across 8-bit wraparound.
	cases := []struct {
		name      string
		local     uint32
		remote    byte
		batch     []byte
		expectNew []byte
		expectAck byte
	}{
		{"fresh", 0, 0, []byte{0x01}, []byte{0x01}, 1},
		{"duplicate", 5, 3, []byte{0xaa, 0xbb}, nil, 0},
		{"partial-overlap", 5, 3, []byte{0xaa, 0xbb, 0xcc}, []byte{0xcc}, 1},
		{"all-new", 5, 5, []byte{0x10, 0x20}, []byte{0x10, 0x20}, 2},
		{"wrap-low", 2, 254, []byte{1, 2, 3, 4, 5}, []byte{5}, 1},
		{"wrap-high", 255, 253, []byte{7, 8, 9}, []byte{9}, 1},
		{"wrap-exact", 256 + 1, 255, []byte{0xee, 0xff, 0x11}, []byte{0x11}, 1},
		// remote ack ran ahead of local count: whole batch is new,
		// the ack still confirms the computed count
		{"remote-ahead", 10, 12, []byte{0xaa}, []byte{0xaa}, 3},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			reg, ack := testRegistry(t)
			g, err := reg.Register(mustPins(t, "1"), func(time.Time, byte) {})
			require.NoError(t, err)
			g.ackCount = c.local

			g.HandleState(time.Now(), c.remote, c.batch)
			assert.Equal(t, c.expectNew, drainStates(reg))
			if c.expectAck == 0 {
				assert.Empty(t, ack.counts)
				assert.Equal(t, c.local, g.ackCount)
			} else {
				require.Equal(t, []byte{c.expectAck}, ack.counts)
				assert.Equal(t, c.local+uint32(c.expectAck), g.ackCount)
			}
		})
	}
}

func TestAckRetransmitIdempotent(t *testing.T) {
	t.Parallel()

	reg, ack := testRegistry(t)
	g, err := reg.Register(mustPins(t, "1"), func(time.Time, byte) {})
	require.NoError(t, err)

	now := time.Now()
	g.HandleState(now, 0, []byte{0x01, 0x00})
	// board did not see the ack, retransmits same batch
	g.HandleState(now, 0, []byte{0x01, 0x00})
	assert.Equal(t, []byte{0x01, 0x00}, drainStates(reg))
	assert.Equal(t, []byte{2}, ack.counts)
}

func TestDispatchBitExtraction(t *testing.T) {
	t.Parallel()

	reg, _ := testRegistry(t)
	type call struct {
		name  string
		state byte
	}
	var calls []call
	record := func(name string) Callback {
		return func(_ time.Time, state byte) {
			calls = append(calls, call{name, state})
		}
	}

	// one group: click at bit0, 2-pin encoder at bits 1-2, inverted back at bit3
	_, err := reg.Register(mustPins(t, "1"), record("click"))
	require.NoError(t, err)
	g, err := reg.Register(mustPins(t, "2,3"), record("enc"))
	require.NoError(t, err)
	g2, err := reg.Register(mustPins(t, "!4"), record("back"))
	require.NoError(t, err)
	require.Same(t, g, g2)

	now := time.Now()
	// invert mask applies first: raw 0 reads back=1 (released, inverted)
	g.Dispatch(now, 0x00)
	require.Equal(t, []call{{"back", 1}}, calls)

	calls = nil
	// click press and both encoder bits change in the same sample
	g.Dispatch(now, 0x01|0x06)
	require.Equal(t, []call{{"click", 1}, {"enc", 3}}, calls)

	calls = nil
	// same sample repeated: no edges, no callbacks
	g.Dispatch(now, 0x01|0x06)
	require.Empty(t, calls)

	calls = nil
	// only encoder bit1 drops: others must not fire
	g.Dispatch(now, 0x01|0x04)
	require.Equal(t, []call{{"enc", 2}}, calls)
}

func TestRegistryGroupAllocation(t *testing.T) {
	t.Parallel()

	reg, _ := testRegistry(t)
	cb := func(time.Time, byte) {}

	g1, err := reg.Register(mustPins(t, "1,2,3,4,5,6,7"), cb)
	require.NoError(t, err)
	// 7+2 > 8: new group on the same board
	g2, err := reg.Register(mustPins(t, "8,9"), cb)
	require.NoError(t, err)
	assert.NotSame(t, g1, g2)
	assert.NotEqual(t, g1.Oid, g2.Oid)
	assert.Len(t, reg.Groups(""), 2)

	_, err = reg.Register(mustPins(t, "10,aux:11"), cb)
	assert.Error(t, err, "pins spanning boards must be rejected")

	_, err = reg.Register(mustPins(t, "ghost:1"), cb)
	assert.Error(t, err, "unknown board must be rejected")
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFrame(7, RespState, 0 /*oid*/, 42 /*ack*/, 0x01, 0x03)
	var parsed Frame
	require.NoError(t, parsed.Parse(f.Bytes()))
	assert.Equal(t, byte(7), parsed.Id)
	assert.Equal(t, RespState, parsed.Header)
	assert.Equal(t, []byte{0, 42, 0x01, 0x03}, parsed.Data())

	// corrupt one payload byte: crc must reject
	b := append([]byte(nil), f.Bytes()...)
	b[4] ^= 0x10
	assert.Error(t, parsed.Parse(b))

	assert.Error(t, parsed.Parse(nil))
	assert.Error(t, parsed.Parse([]byte{3, 0, 0}))
}
