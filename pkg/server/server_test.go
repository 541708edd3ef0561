package server

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/leterax/voxel-arena/pkg/player"
	"github.com/leterax/voxel-arena/pkg/protocol"
	"github.com/leterax/voxel-arena/pkg/transport"
	"github.com/leterax/voxel-arena/pkg/voxel"
)

func newTestServer(t *testing.T) (*Server, *transport.Socket) {
	t.Helper()
	serverSock, err := transport.Bind(0)
	require.NoError(t, err)
	t.Cleanup(func() { serverSock.Close() })

	srv := New(serverSock, 2, 1.0, 20, nil)
	srv.Store().EnsureChunk(voxel.ChunkCoord{X: 0, Y: 0, Z: 0})
	return srv, serverSock
}

func newTestClientSocket(t *testing.T) *transport.Socket {
	t.Helper()
	sock, err := transport.Bind(0)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock
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

func TestJoinProducesHandshakeAndTerrainBurst(t *testing.T) {
	srv, serverSock := newTestServer(t)
	client := newTestClientSocket(t)

	join := protocol.EncodeJoin(0, 0, "astra")
	require.NoError(t, client.SendTo(serverSock.LocalAddr(), join))

	srv.Tick(1.0 / 60)

	handshakeDg := recvWithin(t, client, time.Second)
	handshake, err := protocol.DecodeHandshake(handshakeDg.Payload)
	require.NoError(t, err)
	require.Equal(t, uint32(2), handshake.GridEdgeSize)
	require.Equal(t, uint32(0), handshake.ClientIndex)

	burstDg := recvWithin(t, client, time.Second)
	burst, err := protocol.DecodeChunkVoxelsHardUpdate(burstDg.Payload)
	require.NoError(t, err)
	require.True(t, burst.IsFirstInBurst)
	require.Len(t, burst.Chunks, 1)
}

func TestSecondJoinNotifiesExistingClient(t *testing.T) {
	srv, serverSock := newTestServer(t)
	first := newTestClientSocket(t)
	second := newTestClientSocket(t)

	require.NoError(t, first.SendTo(serverSock.LocalAddr(), protocol.EncodeJoin(0, 0, "astra")))
	srv.Tick(1.0 / 60)
	recvWithin(t, first, time.Second) // handshake
	recvWithin(t, first, time.Second) // terrain burst

	require.NoError(t, second.SendTo(serverSock.LocalAddr(), protocol.EncodeJoin(0, 0, "bramble")))
	srv.Tick(1.0 / 60)
	recvWithin(t, second, time.Second) // handshake
	recvWithin(t, second, time.Second) // terrain burst

	joinedDg := recvWithin(t, first, time.Second)
	joined, err := protocol.DecodeClientJoined(joinedDg.Payload)
	require.NoError(t, err)
	require.Equal(t, "bramble", joined.Player.Name)
}

func joinClient(t *testing.T, srv *Server, serverSock *transport.Socket, name string) (*transport.Socket, uint32) {
	t.Helper()
	sock := newTestClientSocket(t)
	require.NoError(t, sock.SendTo(serverSock.LocalAddr(), protocol.EncodeJoin(0, 0, name)))
	srv.Tick(1.0 / 60)

	handshakeDg := recvWithin(t, sock, time.Second)
	handshake, err := protocol.DecodeHandshake(handshakeDg.Payload)
	require.NoError(t, err)
	recvWithin(t, sock, time.Second) // terrain burst
	return sock, handshake.ClientIndex
}

func TestInputStateAdvancesPlayerAndEmitsSnapshot(t *testing.T) {
	srv, serverSock := newTestServer(t)
	sock, clientID := joinClient(t, srv, serverSock, "astra")

	in := protocol.InputStatePacket{
		Samples:      []protocol.CommandSample{{Dt: 1.0 / 25}},
		PredictedPos: mgl32.Vec3{0, 0, 0},
		PredictedDir: mgl32.Vec3{0, 0, -1},
	}
	require.NoError(t, sock.SendTo(serverSock.LocalAddr(), protocol.EncodeInputState(0, clientID, in)))

	for i := 0; i < 30; i++ {
		srv.Tick(1.0 / 20)
	}

	dg := recvWithin(t, sock, time.Second)
	snap, err := protocol.DecodeGameStateSnapshot(dg.Payload)
	require.NoError(t, err)
	require.Len(t, snap.RemotePlayers, 1)
}

func TestBackPressureGuardDropsInputWhileAwaitingCorrectionAck(t *testing.T) {
	srv, serverSock := newTestServer(t)
	sock, clientID := joinClient(t, srv, serverSock, "astra")

	conn := srv.clients[clientID]
	conn.awaitingCorrectionAck = true

	in := protocol.InputStatePacket{Samples: []protocol.CommandSample{{Dt: 1.0 / 25}}}
	require.NoError(t, sock.SendTo(serverSock.LocalAddr(), protocol.EncodeInputState(0, clientID, in)))
	srv.Tick(1.0 / 20)

	require.Equal(t, 0, conn.queue.Len())
}

func TestTerraformDestroyActionErodesWallAheadOfPlayer(t *testing.T) {
	srv, serverSock := newTestServer(t)
	store := srv.Store()

	c := store.Chunk(voxel.ChunkCoord{X: 0, Y: 0, Z: 0})
	for x := 6; x <= 10; x++ {
		for y := 6; y <= 10; y++ {
			for z := 10; z < voxel.ChunkEdge; z++ {
				c.SetDensity(x, y, z, voxel.MaxDensity)
			}
		}
	}

	sock, clientID := joinClient(t, srv, serverSock, "astra")
	conn := srv.clients[clientID]
	// Voxel z=3: the ray-cast's first step (7-voxel stride) lands exactly on
	// z=10, the wall's near face, so the hit is deterministic.
	conn.player.Pos = store.Grid.VoxelToWorldSpace(mgl32.Vec3{8, 8, 3})
	conn.player.Dir = mgl32.Vec3{0, 0, 1}
	conn.player.EnteringTicks = 0

	in := protocol.InputStatePacket{Samples: []protocol.CommandSample{{ActionFlags: player.ActionTerraformDestroy, Dt: 1.0 / 20}}}
	require.NoError(t, sock.SendTo(serverSock.LocalAddr(), protocol.EncodeInputState(0, clientID, in)))
	srv.Tick(1.0 / 20)

	require.Less(t, c.Density(8, 8, 10), voxel.MaxDensity, "terraform-destroy must erode the surface voxel it ray-casts into")
}

func TestShootActionSpawnsBulletThatCratersTerrainOnImpact(t *testing.T) {
	srv, serverSock := newTestServer(t)
	store := srv.Store()

	c := store.Chunk(voxel.ChunkCoord{X: 0, Y: 0, Z: 0})
	for x := 6; x <= 10; x++ {
		for y := 6; y <= 10; y++ {
			for z := 10; z < voxel.ChunkEdge; z++ {
				c.SetDensity(x, y, z, voxel.MaxDensity)
			}
		}
	}

	sock, clientID := joinClient(t, srv, serverSock, "astra")
	conn := srv.clients[clientID]
	conn.player.Pos = store.Grid.VoxelToWorldSpace(mgl32.Vec3{8, 8, 3})
	conn.player.Dir = mgl32.Vec3{0, 0, 1}
	conn.player.EnteringTicks = 0

	in := protocol.InputStatePacket{Samples: []protocol.CommandSample{{ActionFlags: player.ActionShoot, Dt: 1.0 / 20}}}
	require.NoError(t, sock.SendTo(serverSock.LocalAddr(), protocol.EncodeInputState(0, clientID, in)))

	for i := 0; i < 20; i++ {
		srv.Tick(1.0 / 20)
	}

	require.Empty(t, srv.bullets, "bullet must deactivate and be dropped once it impacts the wall")
	require.Less(t, c.Density(8, 8, 10), voxel.MaxDensity, "bullet impact must carve a destructive sphere into the wall")
}

func TestVoxelEditSentinelWhenClaimMatchesServer(t *testing.T) {
	srv, _ := newTestServer(t)
	c := srv.Store().Chunk(voxel.ChunkCoord{X: 0, Y: 0, Z: 0})
	c.SetDensity(1, 2, 3, 200)

	claimed := []protocol.ModifiedChunkEdits{{
		ChunkLinearIndex: uint16(srv.Store().Grid.PackChunkCoord(voxel.ChunkCoord{X: 0, Y: 0, Z: 0})),
		Voxels:           []protocol.VoxelEdit{{X: 1, Y: 2, Z: 3, Value: 200}, {X: 4, Y: 4, Z: 4, Value: 50}},
	}}

	out := srv.compareVoxelEdits(claimed)
	require.Len(t, out, 1)
	require.Equal(t, protocol.VoxelSentinel, out[0].Voxels[0].Value)
	require.Equal(t, uint8(0), out[0].Voxels[1].Value) // server never wrote (4,4,4); mismatch carries its actual density
}
