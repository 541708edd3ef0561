package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/leterax/voxel-arena/pkg/server"
	"github.com/leterax/voxel-arena/pkg/transport"
	"github.com/leterax/voxel-arena/pkg/voxel"
)

func main() {
	fmt.Println("Starting voxel-arena server...")

	port := flag.Int("port", transport.DefaultServerPort, "UDP port to bind")
	gridEdge := flag.Int("grid", 4, "chunk grid edge length (chunks per axis)")
	voxelSize := flag.Float64("voxelsize", 1.0, "world units per voxel")
	tickRate := flag.Float64("tickrate", 60, "simulation ticks per second")
	snapshotRate := flag.Float64("snapshotrate", 20, "GAME_STATE_SNAPSHOT rate in Hz")
	flag.Parse()

	sock, err := transport.Bind(*port)
	if err != nil {
		log.Fatalf("bind UDP port %d: %v", *port, err)
	}
	defer sock.Close()

	srv := server.New(sock, int32(*gridEdge), float32(*voxelSize), float32(*snapshotRate), log.Default())
	generateTerrain(srv.Store())

	fmt.Printf("Listening on :%d (grid %dx%dx%d, voxel size %.2f)\n", *port, *gridEdge, *gridEdge, *gridEdge, *voxelSize)

	tickPeriod := time.Duration(float64(time.Second) / *tickRate)
	dt := float32(1.0 / *tickRate)

	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	var tickCount int
	lastStatsTime := time.Now()
	for range ticker.C {
		srv.Tick(dt)

		tickCount++
		if time.Since(lastStatsTime) >= time.Second {
			fmt.Printf("tick rate: %d/s\n", tickCount)
			tickCount = 0
			lastStatsTime = time.Now()
		}
	}
}

// generateTerrain fills every chunk with a sine-wave heightmap, the same
// shape as the original singleplayer world generator, adapted to write
// densities directly instead of discrete block types.
func generateTerrain(store *voxel.Store) {
	edge := store.Grid.GridEdge
	for cz := int32(0); cz < edge; cz++ {
		for cy := int32(0); cy < edge; cy++ {
			for cx := int32(0); cx < edge; cx++ {
				chunk := store.EnsureChunk(voxel.ChunkCoord{X: cx, Y: cy, Z: cz})
				fillChunkHeightmap(chunk, cy)
			}
		}
	}
}

func fillChunkHeightmap(chunk *voxel.Chunk, chunkY int32) {
	const midHeight = float64(voxel.ChunkEdge) * 1.5

	for lx := 0; lx < voxel.ChunkEdge; lx++ {
		for lz := 0; lz < voxel.ChunkEdge; lz++ {
			worldX := float64(chunk.Coord.X*voxel.ChunkEdge + int32(lx))
			worldZ := float64(chunk.Coord.Z*voxel.ChunkEdge + int32(lz))
			height := math.Sin(worldX/6.0)*4.0 + math.Cos(worldZ/6.0)*4.0 + midHeight

			for ly := 0; ly < voxel.ChunkEdge; ly++ {
				worldY := float64(chunkY*voxel.ChunkEdge + int32(ly))
				var density uint8
				if worldY <= height {
					density = voxel.MaxDensity
				}
				chunk.SetDensity(lx, ly, lz, density)
			}
		}
	}
}
