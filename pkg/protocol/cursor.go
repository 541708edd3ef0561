// Package protocol implements the wire codec: packet envelope, primitive
// encoders, and the serialize/deserialize routines for every packet kind
// that crosses the client/server boundary.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Writer is a sequential byte cursor over a growing buffer. All multi-byte
// values are written little-endian regardless of host byte order.
type Writer struct {
	buf []byte
}

// NewWriter allocates a Writer with the given starting capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) PutU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutF32(v float32) {
	w.PutU32(math.Float32bits(v))
}

func (w *Writer) PutVec3(v mgl32.Vec3) {
	w.PutF32(v[0])
	w.PutF32(v[1])
	w.PutF32(v[2])
}

// PutQuat writes a quaternion as four little-endian f32 in w,x,y,z order.
func (w *Writer) PutQuat(q mgl32.Quat) {
	w.PutF32(q.W)
	w.PutF32(q.V[0])
	w.PutF32(q.V[1])
	w.PutF32(q.V[2])
}

// PutString writes a null-terminated byte run.
func (w *Writer) PutString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reader is a sequential byte cursor over an owned, already-sized buffer.
// Every read checks bounds and returns an error rather than overrunning.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reading from offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many unread bytes are left in the buffer.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("protocol: cursor overrun at offset %d: need %d bytes, have %d", r.pos, n, r.Remaining())
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) F32() (float32, error) {
	bits, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func (r *Reader) Vec3() (mgl32.Vec3, error) {
	x, err := r.F32()
	if err != nil {
		return mgl32.Vec3{}, err
	}
	y, err := r.F32()
	if err != nil {
		return mgl32.Vec3{}, err
	}
	z, err := r.F32()
	if err != nil {
		return mgl32.Vec3{}, err
	}
	return mgl32.Vec3{x, y, z}, nil
}

// Quat reads a quaternion in w,x,y,z order (see Writer.PutQuat).
func (r *Reader) Quat() (mgl32.Quat, error) {
	w, err := r.F32()
	if err != nil {
		return mgl32.Quat{}, err
	}
	v, err := r.Vec3()
	if err != nil {
		return mgl32.Quat{}, err
	}
	return mgl32.Quat{W: w, V: v}, nil
}

// String reads a null-terminated byte run.
func (r *Reader) String() (string, error) {
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("protocol: unterminated string at offset %d", r.pos)
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}
