package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	// Codec round-trip: Unmarshal(Marshal(p)) == p for all p in [0,255]x[0,255].
	for seq := 0; seq < 256; seq++ {
		for data := 0; data < 256; data++ {
			p := Packet{Seq: uint8(seq), Data: uint8(data)}
			got := Unmarshal(Marshal(p))
			require.Equal(t, p, got)
		}
	}
}

func TestIsAck(t *testing.T) {
	t.Parallel()
	assert.True(t, Ack(7).IsAck())
	assert.False(t, Packet{Seq: 7, Data: 1}.IsAck())
	assert.True(t, Packet{Seq: 7, Data: 0}.IsAck())
}

func TestNewDataRejectsZero(t *testing.T) {
	t.Parallel()
	_, err := NewData(3, 0)
	require.ErrorIs(t, err, ErrReservedPayload)

	p, err := NewData(3, 42)
	require.NoError(t, err)
	assert.Equal(t, Packet{Seq: 3, Data: 42}, p)
}

func TestInWindowWraps(t *testing.T) {
	t.Parallel()
	cases := []struct {
		seq, expected uint8
		want          bool
	}{
		{seq: 4, expected: 4, want: true},
		{seq: 3, expected: 4, want: true},
		{seq: 100, expected: 4, want: false},
		{seq: 255, expected: 0, want: true}, // wraparound: 0-1 == 255
		{seq: 0, expected: 0, want: true},
		{seq: 254, expected: 0, want: false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, InWindow(c.seq, c.expected),
			"InWindow(%d, %d)", c.seq, c.expected)
	}
}

func TestAckCarriesSameSeqAsData(t *testing.T) {
	t.Parallel()
	// Chosen resolution for the ack-seq open question: ack.Seq == pkt.Seq.
	a := Ack(41)
	assert.Equal(t, uint8(41), a.Seq)
	assert.Equal(t, uint8(0), a.Data)
}
