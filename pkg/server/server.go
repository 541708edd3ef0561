// Package server implements the snapshot dispatcher (C8): the
// server-side tick loop that ingests client input, advances each
// player's simulation, and emits per-client authoritative snapshots.
package server

import (
	"log"
	"net"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/leterax/voxel-arena/pkg/command"
	"github.com/leterax/voxel-arena/pkg/player"
	"github.com/leterax/voxel-arena/pkg/protocol"
	"github.com/leterax/voxel-arena/pkg/tick"
	"github.com/leterax/voxel-arena/pkg/transport"
	"github.com/leterax/voxel-arena/pkg/voxel"
)

// epsDivergence is the per-component divergence threshold of §4.3,
// shared by the position and direction checks.
const epsDivergence = 0.1

// chunksPerBurstPacket bounds CHUNK_VOXELS_HARD_UPDATE packets so they
// stay well under transport.MaxDatagramSize (§6, "~40KB").
const chunksPerBurstPacket = 8

// bulletSpeed and a zero muzzle offset match world.cpp's spawn_bullet,
// which fires from the shooter's exact eye position at ws_d * 50.
const bulletSpeed = 50

var bulletMuzzleOffset = mgl32.Vec3{0, 0, 0}

// serverBullet pairs a simulated bullet with the client that fired it, so
// a future per-owner rule (e.g. no self-damage) has somewhere to hang.
type serverBullet struct {
	owner  uint32
	bullet *player.Bullet
}

type clientConn struct {
	player *player.Player
	addr   *net.UDPAddr
	queue  *command.Queue

	awaitingCorrectionAck bool
	lastInputTick         uint64
	predictedPos          mgl32.Vec3
	predictedDir          mgl32.Vec3
	pendingVoxelEdits     []protocol.ModifiedChunkEdits
	hasPendingSample      bool
}

// Server holds all server-side state: the voxel world, connected
// clients, and the clocks pacing the tick loop.
type Server struct {
	logger *log.Logger
	sock   *transport.Socket
	store  *voxel.Store
	clock  *tick.Clock
	snapAcc *tick.Accumulator

	gridEdge  int32
	voxelSize float32

	clients      map[uint32]*clientConn
	nextClientID uint32

	bullets []serverBullet
}

// New builds a server bound to sock, simulating a gridEdge^3 chunk grid
// of voxelSize and emitting snapshots at snapshotRateHz.
func New(sock *transport.Socket, gridEdge int32, voxelSize, snapshotRateHz float32, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		logger:    logger,
		sock:      sock,
		store:     voxel.NewStore(gridEdge, voxelSize),
		clock:     tick.NewClock(),
		snapAcc:   tick.NewAccumulator(snapshotRateHz),
		gridEdge:  gridEdge,
		voxelSize: voxelSize,
		clients:   make(map[uint32]*clientConn),
	}
}

// Store exposes the voxel world so the caller (cmd/server) can generate
// initial terrain before accepting connections.
func (s *Server) Store() *voxel.Store {
	return s.store
}

// Tick drains the receive socket, advances one command sample per
// connected player, and — every 1/SR — emits snapshots (§4.7).
func (s *Server) Tick(dt float32) {
	s.clock.Advance()

	maxPackets := 1 + 2*len(s.clients)
	if err := s.sock.DrainUpTo(maxPackets, s.handleDatagram); err != nil {
		s.logger.Printf("server: recv drain: %v", err)
	}

	for id, c := range s.clients {
		if sample, ok := c.queue.Dequeue(); ok {
			c.player.Step(s.store, sample)
			c.hasPendingSample = true

			if b, ok := c.player.TryShoot(bulletMuzzleOffset, bulletSpeed); ok {
				s.bullets = append(s.bullets, serverBullet{owner: id, bullet: &b})
			}
		}
	}

	s.stepBullets(dt)

	if touched := s.store.DrainRemeshQueue(); len(touched) > 0 {
		s.broadcastTouchedChunks(touched)
	}

	if steps := s.snapAcc.Tick(dt); steps > 0 {
		s.emitSnapshots()
	}
}

// stepBullets advances every live bullet and drops any that went inactive
// this tick — impacted terrain (C5 collision + Store.Terraform) or strayed
// outside the chunk grid (§3 "Destroyed ... on leaving the chunk grid").
func (s *Server) stepBullets(dt float32) {
	live := s.bullets[:0]
	for _, b := range s.bullets {
		b.bullet.Step(s.store, dt)
		if !b.bullet.Active {
			continue
		}
		if !s.store.Grid.InBounds(s.store.Grid.ChunkContaining(s.store.Grid.WorldToVoxelSpace(b.bullet.Pos))) {
			continue
		}
		live = append(live, b)
	}
	s.bullets = live
}

// broadcastTouchedChunks sends every client an unsolicited
// CHUNK_VOXELS_HARD_UPDATE for chunks whose density changed this tick —
// from a player's terraform action or a bullet impact — so bystanders see
// the same crater the acting client already predicted locally.
func (s *Server) broadcastTouchedChunks(touched []*voxel.Chunk) {
	chunks := make([]protocol.ChunkVoxels, 0, len(touched))
	for _, c := range touched {
		chunks = append(chunks, protocol.ChunkVoxels{
			CoordX: uint8(c.Coord.X), CoordY: uint8(c.Coord.Y), CoordZ: uint8(c.Coord.Z),
			Densities: c.Densities,
		})
	}
	buf := protocol.EncodeChunkVoxelsHardUpdate(s.clock.Now(), protocol.ChunkVoxelsHardUpdatePacket{
		Chunks: chunks,
	})
	for id, c := range s.clients {
		if err := s.sock.SendTo(c.addr, buf); err != nil {
			s.logger.Printf("server: send terrain update to client %d: %v", id, err)
		}
	}
}

func (s *Server) handleDatagram(dg transport.Datagram) {
	hdr, err := protocol.PeekHeader(dg.Payload)
	if err != nil {
		s.logger.Printf("server: drop malformed packet from %s: %v", dg.From, err)
		return
	}

	switch protocol.ClientPacketType(hdr.Type) {
	case protocol.PacketJoin:
		s.handleJoin(dg)
	case protocol.PacketInputState:
		s.handleInputState(dg, hdr)
	case protocol.PacketAckSnapshot:
		// telemetry only; the core keeps no per-snapshot retransmit state.
	case protocol.PacketPredictionErrorCorrection:
		s.handlePredictionErrorCorrection(dg, hdr)
	default:
		s.logger.Printf("server: drop unknown packet type %d from %s", hdr.Type, dg.From)
	}
}

func (s *Server) handleJoin(dg transport.Datagram) {
	p, err := protocol.DecodeJoin(dg.Payload)
	if err != nil {
		s.logger.Printf("server: drop malformed JOIN from %s: %v", dg.From, err)
		return
	}

	clientID := s.nextClientID
	s.nextClientID++

	spawn := mgl32.Vec3{0, float32(s.gridEdge) * float32(voxel.ChunkEdge) * s.voxelSize / 2, 0}
	dir := mgl32.Vec3{0, 0, -1}

	conn := &clientConn{
		player: player.NewPlayer(clientID, p.Name, spawn, dir),
		addr:   dg.From,
		queue:  command.NewQueue(),
	}
	s.clients[clientID] = conn

	handshake := protocol.HandshakePacket{
		GridEdgeSize: uint32(s.gridEdge),
		VoxelSize:    s.voxelSize,
		ChunkCount:   uint32(s.gridEdge * s.gridEdge * s.gridEdge),
		MaxChunks:    uint32(s.gridEdge * s.gridEdge * s.gridEdge),
		ClientIndex:  clientID,
		Players:      s.playerInits(),
	}
	buf := protocol.EncodeHandshake(s.clock.Now(), handshake)
	if err := s.sock.SendTo(dg.From, buf); err != nil {
		s.logger.Printf("server: send HANDSHAKE to %s: %v", dg.From, err)
		return
	}
	if err := s.BroadcastTerrain(dg.From); err != nil {
		s.logger.Printf("server: send terrain burst to %s: %v", dg.From, err)
		return
	}

	joined := protocol.EncodeClientJoined(s.clock.Now(), protocol.PlayerInit{
		ClientID: clientID, Name: p.Name, Pos: spawn, Dir: dir,
	})
	for id, other := range s.clients {
		if id == clientID {
			continue
		}
		if err := s.sock.SendTo(other.addr, joined); err != nil {
			s.logger.Printf("server: send CLIENT_JOINED to %s: %v", other.addr, err)
		}
	}

	s.logger.Printf("server: client %d (%q) joined from %s", clientID, p.Name, dg.From)
}

func (s *Server) playerInits() []protocol.PlayerInit {
	out := make([]protocol.PlayerInit, 0, len(s.clients))
	for id, c := range s.clients {
		out = append(out, protocol.PlayerInit{ClientID: id, Name: c.player.Name, Pos: c.player.Pos, Dir: c.player.Dir})
	}
	return out
}

func (s *Server) handleInputState(dg transport.Datagram, hdr protocol.Header) {
	c, ok := s.clients[hdr.ClientID]
	if !ok {
		s.logger.Printf("server: INPUT_STATE from unknown client %d", hdr.ClientID)
		return
	}
	if c.awaitingCorrectionAck {
		return // back-pressure: drop until the correction ack arrives (§4.3)
	}

	in, err := protocol.DecodeInputState(dg.Payload)
	if err != nil {
		s.logger.Printf("server: drop malformed INPUT_STATE from client %d: %v", hdr.ClientID, err)
		return
	}

	samples := make([]command.Sample, len(in.Samples))
	for i, cs := range in.Samples {
		samples[i] = command.Sample{ActionFlags: cs.ActionFlags, MouseDX: cs.MouseDX, MouseDY: cs.MouseDY, Flags: cs.FlagsByte, Dt: cs.Dt}
	}
	c.queue.Enqueue(samples)

	c.lastInputTick = hdr.Tick
	c.predictedPos = in.PredictedPos
	c.predictedDir = in.PredictedDir
	c.pendingVoxelEdits = in.VoxelEdits
}

func (s *Server) handlePredictionErrorCorrection(dg transport.Datagram, hdr protocol.Header) {
	c, ok := s.clients[hdr.ClientID]
	if !ok {
		return
	}
	p, err := protocol.DecodePredictionErrorCorrection(dg.Payload)
	if err != nil {
		s.logger.Printf("server: drop malformed PREDICTION_ERROR_CORRECTION from client %d: %v", hdr.ClientID, err)
		return
	}
	_ = p
	c.awaitingCorrectionAck = false
}

func (s *Server) emitSnapshots() {
	remote := make([]protocol.RemotePlayerBlock, 0, len(s.clients))
	for id, c := range s.clients {
		flags := uint8(0)
		if c.player.Rolling {
			flags |= protocol.FlagIsRolling
		}
		remote = append(remote, protocol.RemotePlayerBlock{
			ClientID:    uint16(id),
			Pos:         c.player.Pos,
			Dir:         c.player.Dir,
			Vel:         c.player.Vel,
			Up:          c.player.Up,
			Quat:        c.player.Quat,
			ActionFlags: c.player.ActionFlags,
			Flags:       flags,
		})
	}

	modifiedChunks := s.store.ModifiedChunkIndices()

	for id, c := range s.clients {
		if !c.hasPendingSample {
			continue
		}
		c.hasPendingSample = false

		players := make([]protocol.RemotePlayerBlock, len(remote))
		copy(players, remote)
		for i := range players {
			if uint32(players[i].ClientID) != id {
				continue
			}
			if posOrDirDiverged(c.player.Pos, c.predictedPos) || posOrDirDiverged(c.player.Dir, c.predictedDir) {
				players[i].Flags |= protocol.FlagNeedCorrection
				c.awaitingCorrectionAck = true
			}
		}

		corrections := s.compareVoxelEdits(c.pendingVoxelEdits)
		if len(corrections) > 0 {
			for i := range players {
				if uint32(players[i].ClientID) == id {
					players[i].Flags |= protocol.FlagNeedVoxelCorrection
				}
			}
		}

		snapshot := protocol.GameStateSnapshotPacket{
			PreviousClientTick: c.lastInputTick,
			VoxelCorrections:   corrections,
			RemotePlayers:      players,
		}
		buf := protocol.EncodeGameStateSnapshot(s.clock.Now(), snapshot)
		if err := s.sock.SendTo(c.addr, buf); err != nil {
			s.logger.Printf("server: send snapshot to client %d: %v", id, err)
		}
	}

	s.store.ClearHistory(modifiedChunks)
}

func posOrDirDiverged(serverVal, claimed mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		d := serverVal[i] - claimed[i]
		if d < 0 {
			d = -d
		}
		if d > epsDivergence {
			return true
		}
	}
	return false
}

// compareVoxelEdits checks each voxel the client claims it wrote against
// the server's authoritative density, per §4.3: a match becomes the
// sentinel, a mismatch carries the server's value.
func (s *Server) compareVoxelEdits(claimed []protocol.ModifiedChunkEdits) []protocol.ModifiedChunkEdits {
	if len(claimed) == 0 {
		return nil
	}
	out := make([]protocol.ModifiedChunkEdits, 0, len(claimed))
	for _, chunkEdits := range claimed {
		c := s.store.ChunkByIndex(int(chunkEdits.ChunkLinearIndex))
		if c == nil {
			continue
		}
		voxels := make([]protocol.VoxelEdit, 0, len(chunkEdits.Voxels))
		for _, v := range chunkEdits.Voxels {
			actual := c.Density(int(v.X), int(v.Y), int(v.Z))
			if actual == v.Value {
				voxels = append(voxels, protocol.VoxelEdit{X: v.X, Y: v.Y, Z: v.Z, Value: protocol.VoxelSentinel})
			} else {
				voxels = append(voxels, protocol.VoxelEdit{X: v.X, Y: v.Y, Z: v.Z, Value: actual})
			}
		}
		out = append(out, protocol.ModifiedChunkEdits{ChunkLinearIndex: chunkEdits.ChunkLinearIndex, Voxels: voxels})
	}
	return out
}

// BroadcastTerrain sends every currently generated chunk to addr as one
// or more CHUNK_VOXELS_HARD_UPDATE bursts, used right after JOIN to seed
// a new client's world (the HANDSHAKE itself only carries grid
// parameters, not densities).
func (s *Server) BroadcastTerrain(addr *net.UDPAddr) error {
	var all []protocol.ChunkVoxels
	for idx := 0; idx < s.store.Grid.ChunkCount(); idx++ {
		c := s.store.ChunkByIndex(idx)
		if c == nil {
			continue
		}
		all = append(all, protocol.ChunkVoxels{
			CoordX: uint8(c.Coord.X), CoordY: uint8(c.Coord.Y), CoordZ: uint8(c.Coord.Z),
			Densities: c.Densities,
		})
	}

	total := uint32(len(all))
	for i := 0; i < len(all); i += chunksPerBurstPacket {
		end := i + chunksPerBurstPacket
		if end > len(all) {
			end = len(all)
		}
		buf := protocol.EncodeChunkVoxelsHardUpdate(s.clock.Now(), protocol.ChunkVoxelsHardUpdatePacket{
			IsFirstInBurst:     i == 0,
			TotalChunksInBurst: total,
			Chunks:             all[i:end],
		})
		if err := s.sock.SendTo(addr, buf); err != nil {
			return err
		}
	}
	return nil
}
