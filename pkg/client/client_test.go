package client

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/leterax/voxel-arena/pkg/command"
	"github.com/leterax/voxel-arena/pkg/protocol"
	"github.com/leterax/voxel-arena/pkg/transport"
)

func newSocketPair(t *testing.T) (clientSock, fakeServerSock *transport.Socket) {
	t.Helper()
	clientSock, err := transport.Bind(0)
	require.NoError(t, err)
	t.Cleanup(func() { clientSock.Close() })

	fakeServerSock, err = transport.Bind(0)
	require.NoError(t, err)
	t.Cleanup(func() { fakeServerSock.Close() })
	return clientSock, fakeServerSock
}

func recvWithin(t *testing.T, sock *transport.Socket, timeout time.Duration) transport.Datagram {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		dg, ok, err := sock.Recv()
		require.NoError(t, err)
		if ok {
			return dg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for datagram")
	return transport.Datagram{}
}

func joinedClient(t *testing.T) (*Client, *transport.Socket) {
	t.Helper()
	clientSock, serverSock := newSocketPair(t)
	cl := New(clientSock, serverSock.LocalAddr(), 25, 20, nil)

	done := make(chan error, 1)
	go func() { done <- cl.JoinServer("astra", time.Second) }()

	joinDg := recvWithin(t, serverSock, time.Second)
	_, err := protocol.DecodeJoin(joinDg.Payload)
	require.NoError(t, err)

	handshake := protocol.EncodeHandshake(0, protocol.HandshakePacket{
		GridEdgeSize: 2, VoxelSize: 1.0, ChunkCount: 8, MaxChunks: 8, ClientIndex: 7,
		Players: []protocol.PlayerInit{
			{ClientID: 7, Name: "astra", Pos: mgl32.Vec3{1, 2, 3}, Dir: mgl32.Vec3{0, 0, -1}},
			{ClientID: 9, Name: "bramble", Pos: mgl32.Vec3{4, 5, 6}, Dir: mgl32.Vec3{0, 0, 1}},
		},
	})
	require.NoError(t, serverSock.SendTo(clientSock.LocalAddr(), handshake))
	require.NoError(t, <-done)

	return cl, serverSock
}

func TestJoinServerAppliesHandshake(t *testing.T) {
	cl, _ := joinedClient(t)

	require.True(t, cl.Connected())
	require.Equal(t, uint32(7), cl.ClientID())
	require.Equal(t, mgl32.Vec3{1, 2, 3}, cl.Player.Pos)
	_, hasRemote := cl.RemoteState(9)
	require.False(t, hasRemote, "interpolator exists but hasn't buffered enough samples yet")
}

func snapshotFor(clientID uint32, previousTick uint64, local protocol.RemotePlayerBlock) []byte {
	return protocol.EncodeGameStateSnapshot(previousTick+1, protocol.GameStateSnapshotPacket{
		PreviousClientTick: previousTick,
		RemotePlayers:      []protocol.RemotePlayerBlock{local},
	})
}

func TestSnapshotWithoutCorrectionFlagLeavesPredictionAlone(t *testing.T) {
	cl, serverSock := joinedClient(t)
	predictedPos := cl.Player.Pos

	buf := snapshotFor(cl.ClientID(), 1, protocol.RemotePlayerBlock{ClientID: uint16(cl.ClientID()), Pos: mgl32.Vec3{99, 99, 99}})
	require.NoError(t, serverSock.SendTo(cl.sock.LocalAddr(), buf))
	require.NoError(t, cl.Poll(0))

	require.Equal(t, predictedPos, cl.Player.Pos, "no NEED_CORRECTION flag must leave the prediction untouched")
}

func TestSnapshotWithCorrectionFlagOverwritesPredictionAndAcks(t *testing.T) {
	cl, serverSock := joinedClient(t)

	block := protocol.RemotePlayerBlock{
		ClientID: uint16(cl.ClientID()), Pos: mgl32.Vec3{10, 20, 30}, Dir: mgl32.Vec3{1, 0, 0},
		Flags: protocol.FlagNeedCorrection,
	}
	buf := snapshotFor(cl.ClientID(), 1, block)
	require.NoError(t, serverSock.SendTo(cl.sock.LocalAddr(), buf))
	require.NoError(t, cl.Poll(0))

	require.Equal(t, mgl32.Vec3{10, 20, 30}, cl.Player.Pos)

	ackDg := recvWithin(t, serverSock, time.Second)
	ack, err := protocol.DecodePredictionErrorCorrection(ackDg.Payload)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ack.AcknowledgedTick)
}

func TestStaleSnapshotIsDroppedAsOutOfOrder(t *testing.T) {
	cl, serverSock := joinedClient(t)

	first := snapshotFor(cl.ClientID(), 5, protocol.RemotePlayerBlock{ClientID: uint16(cl.ClientID()), Flags: protocol.FlagNeedCorrection, Pos: mgl32.Vec3{1, 1, 1}})
	require.NoError(t, serverSock.SendTo(cl.sock.LocalAddr(), first))
	require.NoError(t, cl.Poll(0))
	recvWithin(t, serverSock, time.Second) // correction ack

	stale := snapshotFor(cl.ClientID(), 3, protocol.RemotePlayerBlock{ClientID: uint16(cl.ClientID()), Flags: protocol.FlagNeedCorrection, Pos: mgl32.Vec3{9, 9, 9}})
	require.NoError(t, serverSock.SendTo(cl.sock.LocalAddr(), stale))
	require.NoError(t, cl.Poll(0))

	require.Equal(t, mgl32.Vec3{1, 1, 1}, cl.Player.Pos, "a snapshot with a non-increasing previous_client_tick must be dropped")
}

func TestTransmitInputFiresOnceCommandPeriodElapses(t *testing.T) {
	cl, serverSock := joinedClient(t)

	cl.Step(command.Sample{ActionFlags: 1, Dt: 1.0 / 25})
	require.NoError(t, cl.Poll(1.0/25))

	dg := recvWithin(t, serverSock, time.Second)
	in, err := protocol.DecodeInputState(dg.Payload)
	require.NoError(t, err)
	require.Len(t, in.Samples, 1)
	require.Equal(t, uint32(1), in.Samples[0].ActionFlags)
}
