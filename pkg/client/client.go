// Package client implements client-side prediction and reconciliation
// (C9): a locally simulated player corrected against authoritative
// server snapshots, plus interpolated remote players and a mirrored
// voxel store.
package client

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/leterax/voxel-arena/pkg/command"
	"github.com/leterax/voxel-arena/pkg/interp"
	"github.com/leterax/voxel-arena/pkg/player"
	"github.com/leterax/voxel-arena/pkg/protocol"
	"github.com/leterax/voxel-arena/pkg/tick"
	"github.com/leterax/voxel-arena/pkg/transport"
	"github.com/leterax/voxel-arena/pkg/voxel"
)

// Client holds one player's connection to a server: the predicted local
// player, a mirrored voxel world, and interpolators for every other
// connected player.
type Client struct {
	logger     *log.Logger
	sock       *transport.Socket
	serverAddr *net.UDPAddr

	store  *voxel.Store
	clock  *tick.Clock
	cmdAcc *tick.Accumulator
	ring   *command.Ring

	clientID  uint32
	connected bool
	Player    *player.Player

	remotes        map[uint32]*interp.Interpolator
	snapshotRateHz float32

	hasAcceptedSnapshot bool
	lastAcceptedTick    uint64
}

// New builds a client bound to sock, targeting serverAddr, sampling
// commands at commandRateHz and pacing remote interpolation against
// snapshotRateHz.
func New(sock *transport.Socket, serverAddr *net.UDPAddr, commandRateHz, snapshotRateHz float32, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		logger:         logger,
		sock:           sock,
		serverAddr:     serverAddr,
		clock:          tick.NewClock(),
		cmdAcc:         tick.NewAccumulator(commandRateHz),
		ring:           command.NewRing(command.DefaultCapacity),
		remotes:        make(map[uint32]*interp.Interpolator),
		snapshotRateHz: snapshotRateHz,
	}
}

func (c *Client) ClientID() uint32    { return c.clientID }
func (c *Client) Connected() bool     { return c.connected }
func (c *Client) Store() *voxel.Store { return c.store }
func (c *Client) Tick() uint64        { return c.clock.Now() }

// JoinServer sends JOIN and re-polls the non-blocking socket until a
// HANDSHAKE arrives or timeout elapses.
func (c *Client) JoinServer(name string, timeout time.Duration) error {
	buf := protocol.EncodeJoin(c.clock.Now(), 0, name)
	if err := c.sock.SendTo(c.serverAddr, buf); err != nil {
		return fmt.Errorf("client: send JOIN: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		dg, ok, err := c.sock.Recv()
		if err != nil {
			return err
		}
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		hdr, err := protocol.PeekHeader(dg.Payload)
		if err != nil {
			continue
		}
		if protocol.ServerPacketType(hdr.Type) != protocol.PacketHandshake {
			continue
		}
		hs, err := protocol.DecodeHandshake(dg.Payload)
		if err != nil {
			return fmt.Errorf("client: decode HANDSHAKE: %w", err)
		}
		c.applyHandshake(hs, name)
		return nil
	}
	return fmt.Errorf("client: timed out waiting for HANDSHAKE")
}

func (c *Client) applyHandshake(hs *protocol.HandshakePacket, name string) {
	c.clientID = hs.ClientIndex
	c.store = voxel.NewStore(int32(hs.GridEdgeSize), hs.VoxelSize)

	spawn := mgl32.Vec3{}
	dir := mgl32.Vec3{0, 0, -1}
	for _, p := range hs.Players {
		if p.ClientID == c.clientID {
			spawn, dir = p.Pos, p.Dir
			continue
		}
		c.remotes[p.ClientID] = interp.New(c.snapshotRateHz)
	}
	c.Player = player.NewPlayer(c.clientID, name, spawn, dir)
	c.connected = true
}

// Step advances local prediction by one command sample and buffers it
// for the next transmit window (§7, C6, C7).
func (c *Client) Step(sample command.Sample) {
	if !c.connected {
		return
	}
	c.clock.Advance()
	c.Player.Step(c.store, sample)
	c.ring.Push(sample)
}

// Poll drains the receive socket, advances every remote interpolator by
// dt, and — once the command-rate accumulator fires — transmits the
// buffered input window (§4.3, §4.4).
func (c *Client) Poll(dt float32) error {
	if !c.connected {
		return nil
	}
	if err := c.sock.DrainUpTo(1+2*len(c.remotes), c.HandleDatagram); err != nil {
		return fmt.Errorf("client: recv drain: %w", err)
	}
	for _, it := range c.remotes {
		it.Advance(dt)
	}
	if steps := c.cmdAcc.Tick(dt); steps > 0 {
		c.transmitInput()
	}
	return nil
}

// HandleDatagram dispatches one received server->client packet.
func (c *Client) HandleDatagram(dg transport.Datagram) {
	hdr, err := protocol.PeekHeader(dg.Payload)
	if err != nil {
		c.logger.Printf("client: drop malformed packet: %v", err)
		return
	}

	switch protocol.ServerPacketType(hdr.Type) {
	case protocol.PacketHandshake:
		// consumed synchronously during JoinServer; ignore a stray repeat.
	case protocol.PacketChunkVoxelsHardUpdate:
		c.handleTerrainBurst(dg)
	case protocol.PacketGameStateSnapshot:
		c.handleSnapshot(dg)
	case protocol.PacketClientJoined:
		c.handleClientJoined(dg)
	default:
		c.logger.Printf("client: drop unknown packet type %d", hdr.Type)
	}
}

func (c *Client) handleTerrainBurst(dg transport.Datagram) {
	burst, err := protocol.DecodeChunkVoxelsHardUpdate(dg.Payload)
	if err != nil {
		c.logger.Printf("client: drop malformed CHUNK_VOXELS_HARD_UPDATE: %v", err)
		return
	}
	for _, cv := range burst.Chunks {
		coord := voxel.ChunkCoord{X: int32(cv.CoordX), Y: int32(cv.CoordY), Z: int32(cv.CoordZ)}
		chunk := c.store.EnsureChunk(coord)
		if chunk == nil || len(cv.Densities) != len(chunk.Densities) {
			continue
		}
		copy(chunk.Densities, cv.Densities)
		c.store.QueueRemesh(coord)
	}
}

func (c *Client) handleClientJoined(dg transport.Datagram) {
	joined, err := protocol.DecodeClientJoined(dg.Payload)
	if err != nil {
		c.logger.Printf("client: drop malformed CLIENT_JOINED: %v", err)
		return
	}
	if joined.Player.ClientID == c.clientID {
		return
	}
	if _, ok := c.remotes[joined.Player.ClientID]; !ok {
		c.remotes[joined.Player.ClientID] = interp.New(c.snapshotRateHz)
	}
}

// handleSnapshot applies reconciliation (§5, §4.3): a snapshot whose
// previous_client_tick doesn't strictly exceed the last accepted one is
// dropped as stale/out-of-order; otherwise the local player is corrected
// when flagged and every other player's block feeds its interpolator.
func (c *Client) handleSnapshot(dg transport.Datagram) {
	snap, err := protocol.DecodeGameStateSnapshot(dg.Payload)
	if err != nil {
		c.logger.Printf("client: drop malformed GAME_STATE_SNAPSHOT: %v", err)
		return
	}
	if c.hasAcceptedSnapshot && snap.PreviousClientTick <= c.lastAcceptedTick {
		return
	}
	c.hasAcceptedSnapshot = true
	c.lastAcceptedTick = snap.PreviousClientTick

	for _, rp := range snap.RemotePlayers {
		if uint32(rp.ClientID) == c.clientID {
			c.reconcileLocal(rp, snap.VoxelCorrections, snap.PreviousClientTick)
			continue
		}
		if rp.Flags&protocol.FlagIsToIgnore != 0 {
			continue
		}
		it, ok := c.remotes[uint32(rp.ClientID)]
		if !ok {
			it = interp.New(c.snapshotRateHz)
			c.remotes[uint32(rp.ClientID)] = it
		}
		it.Push(interp.Sample{
			Tick: snap.PreviousClientTick, Pos: rp.Pos, Dir: rp.Dir, Vel: rp.Vel, Up: rp.Up,
			Quat: rp.Quat, ActionFlags: rp.ActionFlags, Rolling: rp.Flags&protocol.FlagIsRolling != 0,
		})
	}

	ack := protocol.EncodeAckSnapshot(c.clock.Now(), c.clientID, snap.Header.Tick)
	if err := c.sock.SendTo(c.serverAddr, ack); err != nil {
		c.logger.Printf("client: send ACK_SNAPSHOT: %v", err)
	}
}

func (c *Client) reconcileLocal(rp protocol.RemotePlayerBlock, corrections []protocol.ModifiedChunkEdits, previousClientTick uint64) {
	if rp.Flags&protocol.FlagIsToIgnore != 0 {
		return
	}
	if rp.Flags&protocol.FlagNeedVoxelCorrection != 0 {
		c.applyVoxelCorrections(corrections)
	}
	if rp.Flags&protocol.FlagNeedCorrection == 0 {
		return
	}

	c.Player.Pos = rp.Pos
	c.Player.Dir = rp.Dir
	c.Player.Vel = rp.Vel
	c.Player.Up = rp.Up
	c.Player.Quat = rp.Quat
	c.clock.Reset(previousClientTick)

	ack := protocol.EncodePredictionErrorCorrection(c.clock.Now(), c.clientID, previousClientTick)
	if err := c.sock.SendTo(c.serverAddr, ack); err != nil {
		c.logger.Printf("client: send PREDICTION_ERROR_CORRECTION: %v", err)
	}
}

func (c *Client) applyVoxelCorrections(corrections []protocol.ModifiedChunkEdits) {
	for _, chunkEdits := range corrections {
		chunk := c.store.ChunkByIndex(int(chunkEdits.ChunkLinearIndex))
		if chunk == nil {
			continue
		}
		for _, v := range chunkEdits.Voxels {
			if v.Value == protocol.VoxelSentinel {
				continue
			}
			chunk.SetDensity(int(v.X), int(v.Y), int(v.Z), v.Value)
		}
		c.store.QueueRemesh(chunk.Coord)
	}
}

// transmitInput drains the outgoing ring and sends every buffered
// sample, the current prediction, and any voxel edits the local
// simulation made since the last window (§6 INPUT_STATE).
func (c *Client) transmitInput() {
	samples := c.ring.DrainAll()
	if len(samples) == 0 {
		return
	}

	wireSamples := make([]protocol.CommandSample, len(samples))
	for i, s := range samples {
		wireSamples[i] = protocol.CommandSample{ActionFlags: s.ActionFlags, MouseDX: s.MouseDX, MouseDY: s.MouseDY, FlagsByte: s.Flags, Dt: s.Dt}
	}

	in := protocol.InputStatePacket{
		Samples:      wireSamples,
		PredictedPos: c.Player.Pos,
		PredictedDir: c.Player.Dir,
		VoxelEdits:   c.collectVoxelEdits(),
	}
	buf := protocol.EncodeInputState(c.clock.Now(), c.clientID, in)
	if err := c.sock.SendTo(c.serverAddr, buf); err != nil {
		c.logger.Printf("client: send INPUT_STATE: %v", err)
	}
}

// collectVoxelEdits reports every voxel the local store wrote since the
// last transmit window, then clears that history (mirrors the server's
// own per-tick bookkeeping over the same Store type).
func (c *Client) collectVoxelEdits() []protocol.ModifiedChunkEdits {
	indices := c.store.ModifiedChunkIndices()
	if len(indices) == 0 {
		return nil
	}
	out := make([]protocol.ModifiedChunkEdits, 0, len(indices))
	for _, idx := range indices {
		chunk := c.store.ChunkByIndex(idx)
		if chunk == nil {
			continue
		}
		voxels := make([]protocol.VoxelEdit, 0, len(chunk.ModifiedVoxels()))
		for _, localIdx := range chunk.ModifiedVoxels() {
			x, y, z := voxel.LocalFromIndex(int(localIdx))
			voxels = append(voxels, protocol.VoxelEdit{X: uint8(x), Y: uint8(y), Z: uint8(z), Value: chunk.Densities[localIdx]})
		}
		out = append(out, protocol.ModifiedChunkEdits{ChunkLinearIndex: uint16(idx), Voxels: voxels})
	}
	c.store.ClearHistory(indices)
	return out
}

// RemoteState returns the blended render state for a connected remote
// player, and false if none is buffered yet.
func (c *Client) RemoteState(id uint32) (interp.Sample, bool) {
	it, ok := c.remotes[id]
	if !ok {
		return interp.Sample{}, false
	}
	return it.State()
}
