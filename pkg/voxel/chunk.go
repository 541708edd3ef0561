package voxel

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// maxModifiedVoxelsPerChunk bounds the per-tick modified-voxel list a
// server-side chunk tracks; overflow discards duplicates by index (§3).
const maxModifiedVoxelsPerChunk = ChunkEdge * ChunkEdge * ChunkEdge / 4

// maxHistoryChunks bounds how many chunks the server tracks pre-write
// history for between snapshots (§4.2).
const maxHistoryChunks = 32

// Chunk is a cube of ChunkEdge^3 voxel densities at a fixed grid
// coordinate, per spec §3.
type Chunk struct {
	Coord  ChunkCoord
	Origin mgl32.Vec3

	Densities []uint8 // len ChunkEdge^3

	Vertices []Vertex // derived mesh, three vertices per triangle, up to 5 triangles per lattice cell

	modified     bool // touched since last network sync
	queuedRemesh bool // queued for mesh rebuild, cleared on rebuild

	// Server-only modification tracking, cleared wholesale when a
	// snapshot referencing them has been broadcast.
	history        []uint8 // pre-write densities, allocated lazily
	historyTaken   bool
	modifiedVoxels []uint16 // linear indices touched this server tick
}

// NewChunk allocates an empty (all-air) chunk at the given grid coordinate.
func NewChunk(coord ChunkCoord, origin mgl32.Vec3) *Chunk {
	return &Chunk{
		Coord:     coord,
		Origin:    origin,
		Densities: make([]uint8, ChunkEdge*ChunkEdge*ChunkEdge),
	}
}

// Density returns the density at local coordinates (0..ChunkEdge-1).
func (c *Chunk) Density(x, y, z int) uint8 {
	return c.Densities[LocalIndex(x, y, z)]
}

// SetDensity writes a density and marks the chunk modified. The server
// uses recordHistory (via Store) before the first write per tick.
func (c *Chunk) SetDensity(x, y, z int, value uint8) {
	c.Densities[LocalIndex(x, y, z)] = value
	c.modified = true
}

// TakeModified reports whether the chunk was written since the last
// network sync, and clears the flag.
func (c *Chunk) TakeModified() bool {
	m := c.modified
	c.modified = false
	return m
}

// Store is the 3-D grid of chunks (C3). Chunks are referenced by linear
// index into a flat slice, never by pointer graph, per the arena+index
// design note.
type Store struct {
	Grid Grid

	mu     sync.RWMutex
	chunks []*Chunk // len Grid.ChunkCount(); nil slot = ungenerated

	remeshQueue []ChunkCoord

	// server-side bookkeeping
	modifiedChunks map[int]struct{} // chunk index -> present this tick window
}

// NewStore builds an empty chunk grid of the given edge size and voxel
// size. Chunks are not allocated until EnsureChunk is called.
func NewStore(gridEdge int32, voxelSize float32) *Store {
	g := Grid{GridEdge: gridEdge, VoxelSize: voxelSize}
	return &Store{
		Grid:           g,
		chunks:         make([]*Chunk, g.ChunkCount()),
		modifiedChunks: make(map[int]struct{}),
	}
}

// EnsureChunk returns the chunk at coord, allocating it if absent. Returns
// nil if coord is out of bounds.
func (s *Store) EnsureChunk(coord ChunkCoord) *Chunk {
	if !s.Grid.InBounds(coord) {
		return nil
	}
	idx := s.Grid.PackChunkCoord(coord)

	s.mu.RLock()
	c := s.chunks[idx]
	s.mu.RUnlock()
	if c != nil {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[idx] == nil {
		s.chunks[idx] = NewChunk(coord, s.Grid.VoxelToWorldSpace(mgl32.Vec3{
			float32(coord.X * ChunkEdge),
			float32(coord.Y * ChunkEdge),
			float32(coord.Z * ChunkEdge),
		}))
	}
	return s.chunks[idx]
}

// Chunk returns the chunk at coord, or nil if ungenerated/out of bounds.
func (s *Store) Chunk(coord ChunkCoord) *Chunk {
	if !s.Grid.InBounds(coord) {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[s.Grid.PackChunkCoord(coord)]
}

// ChunkByIndex returns the chunk at a packed grid index, or nil.
func (s *Store) ChunkByIndex(index int) *Chunk {
	if index < 0 || index >= len(s.chunks) {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[index]
}

// VoxelAt returns the density at a world-space point, and whether the
// containing chunk exists.
func (s *Store) VoxelAt(ws mgl32.Vec3) (uint8, bool) {
	xs := s.Grid.WorldToVoxelSpace(ws)
	coord := s.Grid.ChunkContaining(xs)
	c := s.Chunk(coord)
	if c == nil {
		return 0, false
	}
	lx, ly, lz := LocalVoxelCoord(xs)
	return c.Density(lx, ly, lz), true
}

// QueueRemesh enqueues a chunk for mesh rebuild unless already queued, and
// propagates to axis-negative neighbors whose cells sample across the
// shared face/edge/corner with this chunk (§4.2 mesh rebuild policy: a
// dirty chunk's axis-positive neighbors must also rebuild, so from this
// chunk's perspective its axis-negative neighbors are the ones re-queued).
func (s *Store) QueueRemesh(coord ChunkCoord) {
	s.queueOne(coord)
	for _, d := range neighborOffsets {
		s.queueOne(ChunkCoord{X: coord.X - d[0], Y: coord.Y - d[1], Z: coord.Z - d[2]})
	}
}

var neighborOffsets = [7][3]int32{
	{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

func (s *Store) queueOne(coord ChunkCoord) {
	if !s.Grid.InBounds(coord) {
		return
	}
	c := s.Chunk(coord)
	if c == nil || c.queuedRemesh {
		return
	}
	c.queuedRemesh = true
	s.remeshQueue = append(s.remeshQueue, coord)
}

// DrainRemeshQueue removes and returns all chunks currently queued for
// mesh rebuild, rebuilding each one's Vertices via marching cubes.
func (s *Store) DrainRemeshQueue() []*Chunk {
	queue := s.remeshQueue
	s.remeshQueue = nil

	rebuilt := make([]*Chunk, 0, len(queue))
	for _, coord := range queue {
		c := s.Chunk(coord)
		if c == nil {
			continue
		}
		c.queuedRemesh = false
		c.Vertices = MarchChunk(s, coord)
		rebuilt = append(rebuilt, c)
	}
	return rebuilt
}

// recordHistory snapshots a chunk's pre-write density grid the first time
// it is written to within a server tick, and adds its index to the
// bounded modified-chunks set. No-op past maxHistoryChunks or if already
// recorded this window.
func (s *Store) recordHistory(c *Chunk) {
	idx := s.Grid.PackChunkCoord(c.Coord)
	if _, ok := s.modifiedChunks[idx]; ok {
		return
	}
	if len(s.modifiedChunks) >= maxHistoryChunks {
		return
	}
	if !c.historyTaken {
		c.history = append([]uint8(nil), c.Densities...)
		c.historyTaken = true
	}
	s.modifiedChunks[idx] = struct{}{}
}

// recordVoxelWrite records that a voxel at local index was written this
// server tick, bounded by maxModifiedVoxelsPerChunk (overflow discarded).
func recordVoxelWrite(c *Chunk, localIndex int) {
	if len(c.modifiedVoxels) >= maxModifiedVoxelsPerChunk {
		return
	}
	for _, v := range c.modifiedVoxels {
		if int(v) == localIndex {
			return
		}
	}
	c.modifiedVoxels = append(c.modifiedVoxels, uint16(localIndex))
}

// ModifiedChunkIndices returns the packed indices of chunks with recorded
// server-side history this tick window.
func (s *Store) ModifiedChunkIndices() []int {
	out := make([]int, 0, len(s.modifiedChunks))
	for idx := range s.modifiedChunks {
		out = append(out, idx)
	}
	return out
}

// ClearHistory wipes the recorded pre-write history and modified-voxel
// lists for the chunks whose indices are given, and removes them from the
// modified-chunks set. Called once a snapshot referencing them has been
// broadcast (§4.2).
func (s *Store) ClearHistory(indices []int) {
	for _, idx := range indices {
		delete(s.modifiedChunks, idx)
		c := s.ChunkByIndex(idx)
		if c == nil {
			continue
		}
		c.history = nil
		c.historyTaken = false
		c.modifiedVoxels = nil
	}
}

// ModifiedVoxels returns the linear indices of voxels written to a chunk
// this server tick window (HistoryDensity gives the pre-write density at
// each).
func (c *Chunk) ModifiedVoxels() []uint16 {
	return c.modifiedVoxels
}

// HistoryDensity returns the pre-write density recorded for a local
// index, or the current density if no history was taken.
func (c *Chunk) HistoryDensity(localIndex int) uint8 {
	if !c.historyTaken || localIndex >= len(c.history) {
		return c.Densities[localIndex]
	}
	return c.history[localIndex]
}
