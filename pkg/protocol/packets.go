package protocol

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/leterax/voxel-arena/pkg/voxel"
)

// Remote-player block flag bits (§6 GAME_STATE_SNAPSHOT).
const (
	FlagNeedCorrection      uint8 = 1 << 0
	FlagNeedVoxelCorrection uint8 = 1 << 1
	FlagIsToIgnore          uint8 = 1 << 2
	FlagIsRolling           uint8 = 1 << 3
)

// VoxelSentinel marks a voxel-correction entry as "client's predicted
// density matched the server's; no change required" (§3, §4.3).
const VoxelSentinel uint8 = 255

// PlayerInit is the player-init block repeated in HANDSHAKE and carried
// whole in CLIENT_JOINED.
type PlayerInit struct {
	ClientID uint32
	Name     string
	Pos      mgl32.Vec3
	Dir      mgl32.Vec3
}

func (p PlayerInit) encode(w *Writer) {
	w.PutU32(p.ClientID)
	w.PutString(p.Name)
	w.PutVec3(p.Pos)
	w.PutVec3(p.Dir)
}

func decodePlayerInit(r *Reader) (PlayerInit, error) {
	var p PlayerInit
	var err error
	if p.ClientID, err = r.U32(); err != nil {
		return p, err
	}
	if p.Name, err = r.String(); err != nil {
		return p, err
	}
	if p.Pos, err = r.Vec3(); err != nil {
		return p, err
	}
	if p.Dir, err = r.Vec3(); err != nil {
		return p, err
	}
	return p, nil
}

// VoxelEdit is one in-chunk voxel write: local coordinates plus the value
// either side is claiming for it.
type VoxelEdit struct {
	X, Y, Z uint8
	Value   uint8
}

func (e VoxelEdit) encode(w *Writer) {
	w.PutU8(e.X)
	w.PutU8(e.Y)
	w.PutU8(e.Z)
	w.PutU8(e.Value)
}

func decodeVoxelEdit(r *Reader) (VoxelEdit, error) {
	var e VoxelEdit
	var err error
	if e.X, err = r.U8(); err != nil {
		return e, err
	}
	if e.Y, err = r.U8(); err != nil {
		return e, err
	}
	if e.Z, err = r.U8(); err != nil {
		return e, err
	}
	if e.Value, err = r.U8(); err != nil {
		return e, err
	}
	return e, nil
}

// ModifiedChunkEdits is the voxel-edit block for one chunk: its packed grid
// index plus every voxel touched, used both by INPUT_STATE's claimed-edit
// list and GAME_STATE_SNAPSHOT's correction list (§6).
type ModifiedChunkEdits struct {
	ChunkLinearIndex uint16
	Voxels           []VoxelEdit
}

func (m ModifiedChunkEdits) encode(w *Writer) {
	w.PutU16(m.ChunkLinearIndex)
	w.PutU32(uint32(len(m.Voxels)))
	for _, v := range m.Voxels {
		v.encode(w)
	}
}

func decodeModifiedChunkEdits(r *Reader) (ModifiedChunkEdits, error) {
	var m ModifiedChunkEdits
	var err error
	if m.ChunkLinearIndex, err = r.U16(); err != nil {
		return m, err
	}
	count, err := r.U32()
	if err != nil {
		return m, err
	}
	m.Voxels = make([]VoxelEdit, count)
	for i := range m.Voxels {
		if m.Voxels[i], err = decodeVoxelEdit(r); err != nil {
			return m, err
		}
	}
	return m, nil
}

func encodeVoxelEditBlock(w *Writer, chunks []ModifiedChunkEdits) {
	w.PutU32(uint32(len(chunks)))
	for _, c := range chunks {
		c.encode(w)
	}
}

func decodeVoxelEditBlock(r *Reader) ([]ModifiedChunkEdits, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]ModifiedChunkEdits, count)
	for i := range out {
		if out[i], err = decodeModifiedChunkEdits(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- JOIN ---

type JoinPacket struct {
	Header Header
	Name   string
}

func EncodeJoin(tick uint64, clientID uint32, name string) []byte {
	return buildPacket(ModeClientToServer, uint32(PacketJoin), tick, clientID, func(w *Writer) {
		w.PutString(name)
	})
}

func DecodeJoin(buf []byte) (*JoinPacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	name, err := r.String()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode JOIN: %w", err)
	}
	return &JoinPacket{Header: h, Name: name}, nil
}

// --- HANDSHAKE ---

type HandshakePacket struct {
	Header       Header
	GridEdgeSize uint32
	VoxelSize    float32
	ChunkCount   uint32
	MaxChunks    uint32
	ClientIndex  uint32
	Players      []PlayerInit
}

func EncodeHandshake(tick uint64, p HandshakePacket) []byte {
	return buildPacket(ModeServerToClient, uint32(PacketHandshake), tick, 0, func(w *Writer) {
		w.PutU32(p.GridEdgeSize)
		w.PutF32(p.VoxelSize)
		w.PutU32(p.ChunkCount)
		w.PutU32(p.MaxChunks)
		w.PutU32(p.ClientIndex)
		w.PutU32(uint32(len(p.Players)))
		for _, pl := range p.Players {
			pl.encode(w)
		}
	})
}

func DecodeHandshake(buf []byte) (*HandshakePacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	p := &HandshakePacket{Header: h}
	if p.GridEdgeSize, err = r.U32(); err != nil {
		return nil, err
	}
	if p.VoxelSize, err = r.F32(); err != nil {
		return nil, err
	}
	if p.ChunkCount, err = r.U32(); err != nil {
		return nil, err
	}
	if p.MaxChunks, err = r.U32(); err != nil {
		return nil, err
	}
	if p.ClientIndex, err = r.U32(); err != nil {
		return nil, err
	}
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	p.Players = make([]PlayerInit, count)
	for i := range p.Players {
		if p.Players[i], err = decodePlayerInit(r); err != nil {
			return nil, fmt.Errorf("protocol: decode HANDSHAKE: %w", err)
		}
	}
	return p, nil
}

// --- CHUNK_VOXELS_HARD_UPDATE ---

// ChunkVoxels is one chunk's full density grid for a hard-sync burst.
type ChunkVoxels struct {
	CoordX, CoordY, CoordZ uint8
	Densities              []uint8 // len voxel.ChunkEdge^3
}

func (c ChunkVoxels) encode(w *Writer) {
	w.PutU8(c.CoordX)
	w.PutU8(c.CoordY)
	w.PutU8(c.CoordZ)
	for _, d := range c.Densities {
		w.PutU8(d)
	}
}

func decodeChunkVoxels(r *Reader) (ChunkVoxels, error) {
	var c ChunkVoxels
	var err error
	if c.CoordX, err = r.U8(); err != nil {
		return c, err
	}
	if c.CoordY, err = r.U8(); err != nil {
		return c, err
	}
	if c.CoordZ, err = r.U8(); err != nil {
		return c, err
	}
	n := voxel.ChunkEdge * voxel.ChunkEdge * voxel.ChunkEdge
	raw, err := r.Bytes(n)
	if err != nil {
		return c, err
	}
	c.Densities = append([]uint8(nil), raw...)
	return c, nil
}

type ChunkVoxelsHardUpdatePacket struct {
	Header             Header
	IsFirstInBurst     bool
	TotalChunksInBurst uint32
	Chunks             []ChunkVoxels
}

func EncodeChunkVoxelsHardUpdate(tick uint64, p ChunkVoxelsHardUpdatePacket) []byte {
	return buildPacket(ModeServerToClient, uint32(PacketChunkVoxelsHardUpdate), tick, 0, func(w *Writer) {
		flagAndCount := p.TotalChunksInBurst & 0x7FFFFFFF
		if p.IsFirstInBurst {
			flagAndCount |= 0x80000000
		}
		w.PutU32(flagAndCount)
		w.PutU32(uint32(len(p.Chunks)))
		for _, c := range p.Chunks {
			c.encode(w)
		}
	})
}

func DecodeChunkVoxelsHardUpdate(buf []byte) (*ChunkVoxelsHardUpdatePacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	p := &ChunkVoxelsHardUpdatePacket{Header: h}
	flagAndCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	p.IsFirstInBurst = flagAndCount&0x80000000 != 0
	p.TotalChunksInBurst = flagAndCount & 0x7FFFFFFF

	chunksInPacket, err := r.U32()
	if err != nil {
		return nil, err
	}
	p.Chunks = make([]ChunkVoxels, chunksInPacket)
	for i := range p.Chunks {
		if p.Chunks[i], err = decodeChunkVoxels(r); err != nil {
			return nil, fmt.Errorf("protocol: decode CHUNK_VOXELS_HARD_UPDATE: %w", err)
		}
	}
	return p, nil
}

// --- INPUT_STATE ---

// CommandSample is one buffered client input observation (§3, C7).
type CommandSample struct {
	ActionFlags uint32
	MouseDX     float32
	MouseDY     float32
	FlagsByte   uint8
	Dt          float32
}

func (s CommandSample) encode(w *Writer) {
	w.PutU32(s.ActionFlags)
	w.PutF32(s.MouseDX)
	w.PutF32(s.MouseDY)
	w.PutU8(s.FlagsByte)
	w.PutF32(s.Dt)
}

func decodeCommandSample(r *Reader) (CommandSample, error) {
	var s CommandSample
	var err error
	if s.ActionFlags, err = r.U32(); err != nil {
		return s, err
	}
	if s.MouseDX, err = r.F32(); err != nil {
		return s, err
	}
	if s.MouseDY, err = r.F32(); err != nil {
		return s, err
	}
	if s.FlagsByte, err = r.U8(); err != nil {
		return s, err
	}
	if s.Dt, err = r.F32(); err != nil {
		return s, err
	}
	return s, nil
}

type InputStatePacket struct {
	Header       Header
	Samples      []CommandSample
	PredictedPos mgl32.Vec3
	PredictedDir mgl32.Vec3
	VoxelEdits   []ModifiedChunkEdits
}

func EncodeInputState(tick uint64, clientID uint32, p InputStatePacket) []byte {
	return buildPacket(ModeClientToServer, uint32(PacketInputState), tick, clientID, func(w *Writer) {
		w.PutU32(uint32(len(p.Samples)))
		for _, s := range p.Samples {
			s.encode(w)
		}
		w.PutVec3(p.PredictedPos)
		w.PutVec3(p.PredictedDir)
		encodeVoxelEditBlock(w, p.VoxelEdits)
	})
}

func DecodeInputState(buf []byte) (*InputStatePacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	p := &InputStatePacket{Header: h}

	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	p.Samples = make([]CommandSample, count)
	for i := range p.Samples {
		if p.Samples[i], err = decodeCommandSample(r); err != nil {
			return nil, fmt.Errorf("protocol: decode INPUT_STATE: %w", err)
		}
	}
	if p.PredictedPos, err = r.Vec3(); err != nil {
		return nil, err
	}
	if p.PredictedDir, err = r.Vec3(); err != nil {
		return nil, err
	}
	if p.VoxelEdits, err = decodeVoxelEditBlock(r); err != nil {
		return nil, fmt.Errorf("protocol: decode INPUT_STATE voxel edits: %w", err)
	}
	return p, nil
}

// --- GAME_STATE_SNAPSHOT ---

// RemotePlayerBlock is one player's replicated state in a snapshot (§3, §6).
type RemotePlayerBlock struct {
	ClientID    uint16
	Pos         mgl32.Vec3
	Dir         mgl32.Vec3
	Vel         mgl32.Vec3
	Up          mgl32.Vec3
	Quat        mgl32.Quat
	ActionFlags uint32
	Flags       uint8
}

func (b RemotePlayerBlock) encode(w *Writer) {
	w.PutU16(b.ClientID)
	w.PutVec3(b.Pos)
	w.PutVec3(b.Dir)
	w.PutVec3(b.Vel)
	w.PutVec3(b.Up)
	w.PutQuat(b.Quat)
	w.PutU32(b.ActionFlags)
	w.PutU8(b.Flags)
}

func decodeRemotePlayerBlock(r *Reader) (RemotePlayerBlock, error) {
	var b RemotePlayerBlock
	var err error
	if b.ClientID, err = r.U16(); err != nil {
		return b, err
	}
	if b.Pos, err = r.Vec3(); err != nil {
		return b, err
	}
	if b.Dir, err = r.Vec3(); err != nil {
		return b, err
	}
	if b.Vel, err = r.Vec3(); err != nil {
		return b, err
	}
	if b.Up, err = r.Vec3(); err != nil {
		return b, err
	}
	if b.Quat, err = r.Quat(); err != nil {
		return b, err
	}
	if b.ActionFlags, err = r.U32(); err != nil {
		return b, err
	}
	if b.Flags, err = r.U8(); err != nil {
		return b, err
	}
	return b, nil
}

type GameStateSnapshotPacket struct {
	Header             Header
	PreviousClientTick uint64
	VoxelCorrections   []ModifiedChunkEdits
	RemotePlayers      []RemotePlayerBlock
}

func EncodeGameStateSnapshot(tick uint64, p GameStateSnapshotPacket) []byte {
	return buildPacket(ModeServerToClient, uint32(PacketGameStateSnapshot), tick, 0, func(w *Writer) {
		w.PutU64(p.PreviousClientTick)
		encodeVoxelEditBlock(w, p.VoxelCorrections)
		w.PutU32(uint32(len(p.RemotePlayers)))
		for _, rp := range p.RemotePlayers {
			rp.encode(w)
		}
	})
}

func DecodeGameStateSnapshot(buf []byte) (*GameStateSnapshotPacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	p := &GameStateSnapshotPacket{Header: h}
	if p.PreviousClientTick, err = r.U64(); err != nil {
		return nil, err
	}
	if p.VoxelCorrections, err = decodeVoxelEditBlock(r); err != nil {
		return nil, fmt.Errorf("protocol: decode GAME_STATE_SNAPSHOT voxel corrections: %w", err)
	}
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	p.RemotePlayers = make([]RemotePlayerBlock, count)
	for i := range p.RemotePlayers {
		if p.RemotePlayers[i], err = decodeRemotePlayerBlock(r); err != nil {
			return nil, fmt.Errorf("protocol: decode GAME_STATE_SNAPSHOT remote players: %w", err)
		}
	}
	return p, nil
}

// --- CLIENT_JOINED ---

type ClientJoinedPacket struct {
	Header Header
	Player PlayerInit
}

func EncodeClientJoined(tick uint64, player PlayerInit) []byte {
	return buildPacket(ModeServerToClient, uint32(PacketClientJoined), tick, 0, func(w *Writer) {
		player.encode(w)
	})
}

func DecodeClientJoined(buf []byte) (*ClientJoinedPacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	player, err := decodePlayerInit(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode CLIENT_JOINED: %w", err)
	}
	return &ClientJoinedPacket{Header: h, Player: player}, nil
}

// --- PREDICTION_ERROR_CORRECTION ---

type PredictionErrorCorrectionPacket struct {
	Header           Header
	AcknowledgedTick uint64
}

func EncodePredictionErrorCorrection(tick uint64, clientID uint32, acknowledgedTick uint64) []byte {
	return buildPacket(ModeClientToServer, uint32(PacketPredictionErrorCorrection), tick, clientID, func(w *Writer) {
		w.PutU64(acknowledgedTick)
	})
}

func DecodePredictionErrorCorrection(buf []byte) (*PredictionErrorCorrectionPacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	ackTick, err := r.U64()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode PREDICTION_ERROR_CORRECTION: %w", err)
	}
	return &PredictionErrorCorrectionPacket{Header: h, AcknowledgedTick: ackTick}, nil
}

// --- ACK_SNAPSHOT ---

type AckSnapshotPacket struct {
	Header        Header
	GameStateTick uint64
}

func EncodeAckSnapshot(tick uint64, clientID uint32, gameStateTick uint64) []byte {
	return buildPacket(ModeClientToServer, uint32(PacketAckSnapshot), tick, clientID, func(w *Writer) {
		w.PutU64(gameStateTick)
	})
}

func DecodeAckSnapshot(buf []byte) (*AckSnapshotPacket, error) {
	r := NewReader(buf)
	h, err := parseHeader(r, buf)
	if err != nil {
		return nil, err
	}
	gameStateTick, err := r.U64()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode ACK_SNAPSHOT: %w", err)
	}
	return &AckSnapshotPacket{Header: h, GameStateTick: gameStateTick}, nil
}
