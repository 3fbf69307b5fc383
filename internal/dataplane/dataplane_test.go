package dataplane

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"sdwan-overlay/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataPlane(t *testing.T, mtu int) *DataPlane {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	dp, err := New(Config{ListenAddr: "127.0.0.1:0", MTU: mtu}, logger)
	require.NoError(t, err)
	return dp
}

func localAddrPort(t *testing.T, dp *DataPlane) netip.AddrPort {
	t.Helper()
	addr, ok := dp.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	return addr.AddrPort()
}

func TestForwardPacketNoRoute(t *testing.T) {
	dp := testDataPlane(t, 1400)
	defer dp.conn.Close()

	err := dp.ForwardPacket([]byte("data"), netip.MustParseAddr("10.9.9.9"))
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, uint64(1), dp.Stats().PacketsDropped)
}

func TestForwardPacketNoTunnel(t *testing.T) {
	dp := testDataPlane(t, 1400)
	defer dp.conn.Close()

	dst := netip.MustParseAddr("10.9.9.9")
	dp.AddRoute(dst, 1)

	err := dp.ForwardPacket([]byte("data"), dst)
	assert.ErrorIs(t, err, ErrNoTunnel)
	assert.Equal(t, uint64(1), dp.Stats().PacketsDropped)
}

func TestForwardPacketExceedsMTU(t *testing.T) {
	dp := testDataPlane(t, 100)
	defer dp.conn.Close()

	dst := netip.MustParseAddr("10.9.9.9")
	dp.AddRoute(dst, 1)
	dp.AddTunnel(model.TunnelEndpoint{
		PathID:     1,
		RemoteAddr: netip.MustParseAddrPort("127.0.0.1:9"),
	})

	err := dp.ForwardPacket(make([]byte, 101), dst)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
	assert.Equal(t, uint64(1), dp.Stats().PacketsDropped)
	assert.Equal(t, uint64(0), dp.Stats().PacketsForwarded)
}

func TestRemovedTunnelFailsAtForwardTime(t *testing.T) {
	dp := testDataPlane(t, 1400)
	defer dp.conn.Close()

	dst := netip.MustParseAddr("10.9.9.9")
	dp.AddRoute(dst, 1)
	dp.AddTunnel(model.TunnelEndpoint{
		PathID:     1,
		RemoteAddr: netip.MustParseAddrPort("127.0.0.1:9"),
	})
	dp.RemoveTunnel(1)

	err := dp.ForwardPacket([]byte("data"), dst)
	assert.ErrorIs(t, err, ErrNoTunnel)
}

func TestForwardAndReceiveLoopback(t *testing.T) {
	sender := testDataPlane(t, 1400)
	receiver := testDataPlane(t, 1400)

	payloads := make(chan []byte, 10)
	receiver.SetPacketHandler(func(payload []byte, from netip.AddrPort) {
		payloads <- payload
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)
	defer sender.conn.Close()

	dst := netip.MustParseAddr("10.9.9.9")
	sender.AddRoute(dst, 1)
	sender.AddTunnel(model.TunnelEndpoint{
		PathID:             1,
		RemoteAddr:         localAddrPort(t, receiver),
		CompressionEnabled: true,
	})

	// Compressible payload exercises the full compress/decompress path
	packet := bytes.Repeat([]byte("overlay"), 100)
	require.NoError(t, sender.ForwardPacket(packet, dst))

	select {
	case got := <-payloads:
		assert.Equal(t, packet, got)
	case <-time.After(2 * time.Second):
		t.Fatal("packet not received")
	}

	stats := sender.Stats()
	assert.Equal(t, uint64(1), stats.PacketsForwarded)
	assert.Greater(t, stats.BytesForwarded, uint64(0))
	assert.Equal(t, uint64(1), stats.PacketsCompressed)
	assert.Equal(t, uint64(len(packet)), stats.BytesBeforeComp)
	assert.Less(t, stats.BytesAfterComp, stats.BytesBeforeComp)
	assert.Eventually(t, func() bool {
		return receiver.Stats().PacketsReceived == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCompressionSkipCounters(t *testing.T) {
	sender := testDataPlane(t, 1400)
	defer sender.conn.Close()

	dst := netip.MustParseAddr("10.9.9.9")
	sender.AddRoute(dst, 1)
	sender.AddTunnel(model.TunnelEndpoint{
		PathID:             1,
		RemoteAddr:         netip.MustParseAddrPort("127.0.0.1:9"),
		CompressionEnabled: true,
	})

	// Below the compression floor, so it goes out verbatim
	require.NoError(t, sender.ForwardPacket([]byte("tiny"), dst))

	stats := sender.Stats()
	assert.Equal(t, uint64(1), stats.CompressionSkips)
	assert.Zero(t, stats.PacketsCompressed)
}

func TestMalformedFramesDroppedNotFatal(t *testing.T) {
	receiver := testDataPlane(t, 1400)
	payloads := make(chan []byte, 1)
	receiver.SetPacketHandler(func(payload []byte, from netip.AddrPort) {
		payloads <- payload
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)

	conn, err := net.Dial("udp", receiver.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Garbage datagram, then a valid frame: the loop must survive
	_, err = conn.Write([]byte{0x01, 0x02})
	require.NoError(t, err)

	valid := encodeFrame([]byte("still alive"), false).Marshal()
	_, err = conn.Write(valid)
	require.NoError(t, err)

	select {
	case got := <-payloads:
		assert.Equal(t, []byte("still alive"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after garbage was not delivered")
	}
	assert.GreaterOrEqual(t, receiver.Stats().PacketsDropped, uint64(1))
}

func TestTxBytesPerPath(t *testing.T) {
	sender := testDataPlane(t, 1400)
	defer sender.conn.Close()

	dst := netip.MustParseAddr("10.9.9.9")
	sender.AddRoute(dst, 1)
	sender.AddTunnel(model.TunnelEndpoint{
		PathID:     1,
		RemoteAddr: netip.MustParseAddrPort("127.0.0.1:9"),
	})

	require.NoError(t, sender.ForwardPacket([]byte("abc"), dst))
	require.NoError(t, sender.ForwardPacket([]byte("defg"), dst))

	assert.Greater(t, sender.TxBytes(1), uint64(0))
	assert.Equal(t, uint64(0), sender.TxBytes(2))
}

func TestResetStats(t *testing.T) {
	dp := testDataPlane(t, 1400)
	defer dp.conn.Close()

	_ = dp.ForwardPacket([]byte("data"), netip.MustParseAddr("10.9.9.9"))
	require.Equal(t, uint64(1), dp.Stats().PacketsDropped)

	dp.ResetStats()
	assert.Equal(t, Stats{}, dp.Stats())
}

func TestRunStopsOnCancel(t *testing.T) {
	dp := testDataPlane(t, 1400)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dp.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("receive loop did not stop after cancellation")
	}
}
