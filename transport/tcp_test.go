package transport

import (
	"testing"
	"time"

	"github.com/eenblam/perfectlink/packet"
	"github.com/stretchr/testify/require"
)

func acceptOne(t *testing.T, ln Listener, out chan<- Session) {
	t.Helper()
	s, err := ln.Accept()
	require.NoError(t, err)
	out <- s
}

func TestTCPRoundTrip(t *testing.T) {
	binder := NewTCPBinder()
	ln, err := binder.Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.(*tcpListener).ln.Addr().String()

	accepted := make(chan Session, 1)
	go acceptOne(t, ln, accepted)

	dialer := NewTCPDialer()
	client, err := dialer.Connect(addr)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	pkt, err := packet.NewData(7, 42)
	require.NoError(t, err)
	require.NoError(t, client.Write(pkt))

	got, err := server.ReadPacket(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, pkt, got)

	ack := packet.Ack(7)
	require.NoError(t, server.Write(ack))

	gotAck, err := client.ReadPacket(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, ack, gotAck)
}

func TestTCPReadTimeout(t *testing.T) {
	binder := NewTCPBinder()
	ln, err := binder.Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.(*tcpListener).ln.Addr().String()

	accepted := make(chan Session, 1)
	go acceptOne(t, ln, accepted)

	dialer := NewTCPDialer()
	client, err := dialer.Connect(addr)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	_, err = client.ReadPacket(time.Now().Add(50 * time.Millisecond))
	require.Error(t, err)
	require.True(t, IsTimeout(err))
}

func TestTCPConnectUnreachable(t *testing.T) {
	dialer := NewTCPDialer()
	_, err := dialer.Connect("127.0.0.1:1")
	require.Error(t, err)
	terr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, DestinationUnreachable, terr.Kind)
}

func TestTCPReadAfterPeerCloseIsNotTimeout(t *testing.T) {
	binder := NewTCPBinder()
	ln, err := binder.Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.(*tcpListener).ln.Addr().String()

	accepted := make(chan Session, 1)
	go acceptOne(t, ln, accepted)

	dialer := NewTCPDialer()
	client, err := dialer.Connect(addr)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	require.NoError(t, server.Close())

	_, err = client.ReadPacket(time.Now().Add(time.Second))
	require.Error(t, err)
	require.False(t, IsTimeout(err))
	terr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, RecvError, terr.Kind)
}
