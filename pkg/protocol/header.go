package protocol

import "fmt"

// HeaderSize is the fixed envelope size: packed word (4) + tick (8) +
// client_id (4).
const HeaderSize = 16

// Mode is the packet envelope's direction bit.
type Mode uint32

const (
	ModeClientToServer Mode = 0
	ModeServerToClient Mode = 1
)

// ClientPacketType enumerates the client->server packet kinds.
type ClientPacketType uint32

const (
	PacketJoin ClientPacketType = iota
	PacketInputState
	PacketAckSnapshot
	PacketPredictionErrorCorrection
)

// ServerPacketType enumerates the server->client packet kinds.
type ServerPacketType uint32

const (
	PacketHandshake ServerPacketType = iota
	PacketChunkVoxelsHardUpdate
	PacketGameStateSnapshot
	PacketClientJoined
)

// Header is the 16-byte envelope prefixing every packet: a packed word
// (mode: 1 bit, type: 4 bits, total_packet_size: 27 bits), the current
// tick, and a client id (the sender's id on client->server packets; every
// server->client packet carries 0).
type Header struct {
	Mode      Mode
	Type      uint32
	TotalSize uint32
	Tick      uint64
	ClientID  uint32
}

func packWord(mode Mode, ptype uint32, totalSize uint32) uint32 {
	return (uint32(mode) & 0x1) | ((ptype & 0xF) << 1) | ((totalSize & 0x7FFFFFF) << 5)
}

func unpackWord(word uint32) (mode Mode, ptype uint32, totalSize uint32) {
	mode = Mode(word & 0x1)
	ptype = (word >> 1) & 0xF
	totalSize = (word >> 5) & 0x7FFFFFF
	return
}

// buildPacket writes the 16-byte envelope followed by whatever body writes,
// then patches the packed word's total_packet_size field to the final
// length. Tick and clientID are caller-supplied simulation state.
func buildPacket(mode Mode, ptype uint32, tick uint64, clientID uint32, body func(w *Writer)) []byte {
	w := NewWriter(64)
	w.PutU32(0) // patched below
	w.PutU64(tick)
	w.PutU32(clientID)
	body(w)

	buf := w.Bytes()
	word := packWord(mode, ptype, uint32(len(buf)))
	patchU32(buf, 0, word)
	return buf
}

func patchU32(buf []byte, offset int, v uint32) {
	buf[offset] = byte(v)
	buf[offset+1] = byte(v >> 8)
	buf[offset+2] = byte(v >> 16)
	buf[offset+3] = byte(v >> 24)
}

// parseHeader reads and validates the envelope: total_packet_size must
// agree with the actual buffer length (§7 malformed-packet check). Callers
// MUST perform this check before trusting any body field.
func parseHeader(r *Reader, buf []byte) (Header, error) {
	word, err := r.U32()
	if err != nil {
		return Header{}, fmt.Errorf("protocol: read envelope word: %w", err)
	}
	mode, ptype, totalSize := unpackWord(word)

	tick, err := r.U64()
	if err != nil {
		return Header{}, fmt.Errorf("protocol: read tick: %w", err)
	}
	clientID, err := r.U32()
	if err != nil {
		return Header{}, fmt.Errorf("protocol: read client id: %w", err)
	}

	if int(totalSize) != len(buf) {
		return Header{}, fmt.Errorf("protocol: malformed packet: envelope declares %d bytes, got %d", totalSize, len(buf))
	}

	return Header{Mode: mode, Type: ptype, TotalSize: totalSize, Tick: tick, ClientID: clientID}, nil
}

// PeekHeader validates and returns a packet's envelope without decoding its
// body, so a caller can dispatch on Header.Mode/Header.Type before picking
// the matching Decode function.
func PeekHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("protocol: datagram shorter than envelope: %d bytes", len(buf))
	}
	return parseHeader(NewReader(buf), buf)
}
