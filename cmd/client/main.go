package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/leterax/voxel-arena/pkg/client"
	"github.com/leterax/voxel-arena/pkg/command"
	"github.com/leterax/voxel-arena/pkg/transport"
)

func main() {
	fmt.Println("Starting voxel-arena client...")

	serverAddr := flag.String("server", "127.0.0.1", "server host")
	serverPort := flag.Int("serverport", transport.DefaultServerPort, "server UDP port")
	localPort := flag.Int("port", transport.DefaultClientPort, "local UDP port to bind")
	playerName := flag.String("name", "Player", "player name")
	commandRate := flag.Float64("commandrate", 25, "command sampling rate in Hz")
	snapshotRate := flag.Float64("snapshotrate", 20, "expected server snapshot rate in Hz, for remote interpolation pacing")
	simRate := flag.Float64("simrate", 60, "local simulation step rate in Hz")
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", *serverAddr, *serverPort))
	if err != nil {
		log.Fatalf("resolve server address: %v", err)
	}

	sock, err := transport.Bind(*localPort)
	if err != nil {
		log.Fatalf("bind UDP port %d: %v", *localPort, err)
	}
	defer sock.Close()

	cl := client.New(sock, addr, float32(*commandRate), float32(*snapshotRate), log.Default())

	fmt.Printf("Joining %s as %q...\n", addr, *playerName)
	if err := cl.JoinServer(*playerName, 5*time.Second); err != nil {
		log.Fatalf("join server: %v", err)
	}
	fmt.Printf("Joined as client %d\n", cl.ClientID())

	simPeriod := time.Duration(float64(time.Second) / *simRate)
	dt := float32(1.0 / *simRate)

	ticker := time.NewTicker(simPeriod)
	defer ticker.Stop()

	for range ticker.C {
		cl.Step(command.Sample{Dt: dt})
		if err := cl.Poll(dt); err != nil {
			log.Printf("poll: %v", err)
		}
	}
}
