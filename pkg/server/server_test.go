package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rdctrack/pkg/wire"
)

// dialRendezvous drives one worker's start command over a real loopback
// TCP connection and returns its assigned rank.
func dialRendezvous(t *testing.T, addr string, requestedRank int32) int32 {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	c := wire.NewConn(conn)
	require.NoError(t, c.WriteString("start"))
	require.NoError(t, c.WriteInt(requestedRank))
	require.NoError(t, c.WriteString("worker:0"))

	nDead, err := c.ReadInt()
	require.NoError(t, err)
	for i := int32(0); i < nDead; i++ {
		_, err := c.ReadInt()
		require.NoError(t, err)
	}
	_, err = c.ReadInt() // pending nodes
	require.NoError(t, err)
	nPeers, err := c.ReadInt()
	require.NoError(t, err)
	for i := int32(0); i < nPeers; i++ {
		_, err := c.ReadInt()
		require.NoError(t, err)
	}
	_, err = c.ReadInt() // nworld
	require.NoError(t, err)
	rank, err := c.ReadInt()
	require.NoError(t, err)

	require.NoError(t, c.WriteString("shutdown"))
	return rank
}

func TestServer_AcceptsAndCompletesRendezvous(t *testing.T) {
	srv := New(Config{ListenAddr: "127.0.0.1:0", NWorker: 2})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	srv.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.ListenAndServe(ctx) }()

	// Give the listener a moment to come up.
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	rankCh := make(chan int32, 2)
	go func() { rankCh <- dialRendezvous(t, addr, -1) }()
	go func() { rankCh <- dialRendezvous(t, addr, -1) }()

	r0 := <-rankCh
	r1 := <-rankCh
	assert.NotEqual(t, r0, r1)

	cancel()
	select {
	case err := <-serveErrCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after context cancellation")
	}
}
