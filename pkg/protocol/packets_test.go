package protocol

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/leterax/voxel-arena/pkg/voxel"
)

func TestHeaderPackUnpackRoundTrip(t *testing.T) {
	word := packWord(ModeServerToClient, uint32(PacketGameStateSnapshot), 1234)
	mode, ptype, size := unpackWord(word)
	require.Equal(t, ModeServerToClient, mode)
	require.Equal(t, uint32(PacketGameStateSnapshot), ptype)
	require.Equal(t, uint32(1234), size)
}

func TestJoinRoundTrip(t *testing.T) {
	buf := EncodeJoin(7, 0, "p1")
	p, err := DecodeJoin(buf)
	require.NoError(t, err)
	require.Equal(t, "p1", p.Name)
	require.Equal(t, uint64(7), p.Header.Tick)
	require.Equal(t, ModeClientToServer, p.Header.Mode)
	require.Equal(t, uint32(PacketJoin), p.Header.Type)
}

func TestHandshakeRoundTrip(t *testing.T) {
	want := HandshakePacket{
		GridEdgeSize: 5,
		VoxelSize:    9.0,
		ChunkCount:   125,
		MaxChunks:    125,
		ClientIndex:  0,
		Players: []PlayerInit{
			{ClientID: 0, Name: "p1", Pos: mgl32.Vec3{1, 2, 3}, Dir: mgl32.Vec3{0, 0, 1}},
		},
	}
	buf := EncodeHandshake(3, want)
	got, err := DecodeHandshake(buf)
	require.NoError(t, err)
	require.Equal(t, want.GridEdgeSize, got.GridEdgeSize)
	require.Equal(t, want.VoxelSize, got.VoxelSize)
	require.Equal(t, want.ChunkCount, got.ChunkCount)
	require.Equal(t, want.MaxChunks, got.MaxChunks)
	require.Equal(t, want.Players, got.Players)
}

func TestChunkVoxelsHardUpdateRoundTrip(t *testing.T) {
	densities := make([]uint8, voxel.ChunkEdge*voxel.ChunkEdge*voxel.ChunkEdge)
	for i := range densities {
		densities[i] = uint8(i % 255)
	}
	want := ChunkVoxelsHardUpdatePacket{
		IsFirstInBurst:     true,
		TotalChunksInBurst: 1,
		Chunks: []ChunkVoxels{
			{CoordX: 1, CoordY: 2, CoordZ: 3, Densities: densities},
		},
	}
	buf := EncodeChunkVoxelsHardUpdate(10, want)
	got, err := DecodeChunkVoxelsHardUpdate(buf)
	require.NoError(t, err)
	require.True(t, got.IsFirstInBurst)
	require.Equal(t, want.TotalChunksInBurst, got.TotalChunksInBurst)
	require.Equal(t, want.Chunks, got.Chunks)
}

func TestInputStateRoundTrip(t *testing.T) {
	want := InputStatePacket{
		Samples: []CommandSample{
			{ActionFlags: 0x1, MouseDX: 1.5, MouseDY: -2.5, FlagsByte: 0x2, Dt: 1.0 / 60},
			{ActionFlags: 0x4, MouseDX: 0, MouseDY: 0, FlagsByte: 0, Dt: 1.0 / 60},
		},
		PredictedPos: mgl32.Vec3{1, 2, 3},
		PredictedDir: mgl32.Vec3{0, 0, -1},
		VoxelEdits: []ModifiedChunkEdits{
			{ChunkLinearIndex: 42, Voxels: []VoxelEdit{{X: 1, Y: 1, Z: 1, Value: 120}}},
		},
	}
	buf := EncodeInputState(100, 3, want)
	got, err := DecodeInputState(buf)
	require.NoError(t, err)
	require.Equal(t, want.Samples, got.Samples)
	require.Equal(t, want.PredictedPos, got.PredictedPos)
	require.Equal(t, want.PredictedDir, got.PredictedDir)
	require.Equal(t, want.VoxelEdits, got.VoxelEdits)
	require.Equal(t, uint32(3), got.Header.ClientID)
}

func TestGameStateSnapshotRoundTrip(t *testing.T) {
	want := GameStateSnapshotPacket{
		PreviousClientTick: 99,
		VoxelCorrections: []ModifiedChunkEdits{
			{ChunkLinearIndex: 42, Voxels: []VoxelEdit{{X: 1, Y: 1, Z: 1, Value: VoxelSentinel}}},
		},
		RemotePlayers: []RemotePlayerBlock{
			{
				ClientID:    0,
				Pos:         mgl32.Vec3{1, 2, 3},
				Dir:         mgl32.Vec3{0, 0, 1},
				Vel:         mgl32.Vec3{0, 0, 0},
				Up:          mgl32.Vec3{0, 1, 0},
				Quat:        mgl32.QuatIdent(),
				ActionFlags: 0x8,
				Flags:       FlagNeedCorrection | FlagIsRolling,
			},
		},
	}
	buf := EncodeGameStateSnapshot(200, want)
	got, err := DecodeGameStateSnapshot(buf)
	require.NoError(t, err)
	require.Equal(t, want.PreviousClientTick, got.PreviousClientTick)
	require.Equal(t, want.VoxelCorrections, got.VoxelCorrections)
	require.Equal(t, want.RemotePlayers, got.RemotePlayers)
}

func TestClientJoinedRoundTrip(t *testing.T) {
	player := PlayerInit{ClientID: 2, Name: "p2", Pos: mgl32.Vec3{4, 5, 6}, Dir: mgl32.Vec3{1, 0, 0}}
	buf := EncodeClientJoined(5, player)
	got, err := DecodeClientJoined(buf)
	require.NoError(t, err)
	require.Equal(t, player, got.Player)
}

func TestPredictionErrorCorrectionRoundTrip(t *testing.T) {
	buf := EncodePredictionErrorCorrection(12, 4, 9)
	got, err := DecodePredictionErrorCorrection(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(9), got.AcknowledgedTick)
	require.Equal(t, uint32(4), got.Header.ClientID)
}

func TestAckSnapshotRoundTrip(t *testing.T) {
	buf := EncodeAckSnapshot(12, 4, 77)
	got, err := DecodeAckSnapshot(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(77), got.GameStateTick)
}

func TestPeekHeaderMatchesDecodedHeader(t *testing.T) {
	buf := EncodeJoin(1, 0, "x")
	h, err := PeekHeader(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(PacketJoin), h.Type)
	require.Equal(t, ModeClientToServer, h.Mode)
}

func TestMalformedEnvelopeSizeIsRejected(t *testing.T) {
	buf := EncodeJoin(1, 0, "x")
	truncated := buf[:len(buf)-1]
	_, err := PeekHeader(truncated)
	require.Error(t, err)
}

func TestShortBufferIsRejected(t *testing.T) {
	_, err := DecodeJoin([]byte{1, 2, 3})
	require.Error(t, err)
}
