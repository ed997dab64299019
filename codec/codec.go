// Package codec implements the deterministic binary encoding used for
// transactions, block headers and wire messages.
//
// Encoding rules:
//   - unsigned integers (8/16/32/64 bit) are fixed-width little-endian
//   - 256-bit integers are 32 bytes big-endian
//   - hashes, addresses, keys and signatures are raw fixed-width bytes
//   - strings and byte blobs are varint(len) || bytes, LEB128 unsigned
//   - booleans are one byte, 0x00 or 0x01
package codec

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
)

var (
	ErrUnexpectedEOF = errors.New("codec: unexpected end of input")
	ErrBadBool       = errors.New("codec: boolean byte not 0x00 or 0x01")
	ErrBlobTooLarge  = errors.New("codec: blob length exceeds limit")
	ErrTrailingBytes = errors.New("codec: trailing bytes after decode")
)

// MaxBlobLength bounds any single length-prefixed field. It exists so a
// malformed length prefix cannot drive an allocation of arbitrary size.
const MaxBlobLength = 16 << 20

// Writer accumulates a canonical encoding. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with capacity preallocated for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated encoding. The returned slice aliases the
// writer's buffer; callers that keep it must not reuse the writer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint256 appends the 32-byte big-endian representation of v.
// A nil value encodes as zero.
func (w *Writer) WriteUint256(v *uint256.Int) {
	var b [32]byte
	if v != nil {
		b = v.Bytes32()
	}
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteHash(h common.Hash) {
	w.buf = append(w.buf, h[:]...)
}

func (w *Writer) WriteAddress(a common.Address) {
	w.buf = append(w.buf, a[:]...)
}

// WriteFixed appends b raw, without a length prefix. The caller guarantees
// the width is fixed by the schema (public keys, signatures).
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBytes appends varint(len(b)) followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteString(s string) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 0x01)
	} else {
		w.buf = append(w.buf, 0x00)
	}
}

// Reader decodes a canonical encoding. Errors are sticky: after the first
// failure every subsequent read returns the zero value and Err reports the
// original cause.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered while reading.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Finish fails unless the input was consumed exactly.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return ErrTrailingBytes
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data)-r.off < n {
		r.err = ErrUnexpectedEOF
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadUint256() *uint256.Int {
	b := r.take(32)
	if b == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).SetBytes(b)
}

func (r *Reader) ReadHash() common.Hash {
	var h common.Hash
	b := r.take(common.HashLength)
	if b != nil {
		copy(h[:], b)
	}
	return h
}

func (r *Reader) ReadAddress() common.Address {
	var a common.Address
	b := r.take(common.AddressLength)
	if b != nil {
		copy(a[:], b)
	}
	return a
}

// ReadFixed returns a copy of the next n raw bytes.
func (r *Reader) ReadFixed(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return common.CopyBytes(b)
}

func (r *Reader) readLength() int {
	if r.err != nil {
		return 0
	}
	n, size := binary.Uvarint(r.data[r.off:])
	if size <= 0 {
		r.err = ErrUnexpectedEOF
		return 0
	}
	if n > MaxBlobLength || n > math.MaxInt32 {
		r.err = ErrBlobTooLarge
		return 0
	}
	r.off += size
	return int(n)
}

// ReadBytes decodes a varint-length-prefixed blob. A zero-length blob
// decodes as an empty, non-nil slice.
func (r *Reader) ReadBytes() []byte {
	n := r.readLength()
	if r.err != nil {
		return nil
	}
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *Reader) ReadString() string {
	n := r.readLength()
	if r.err != nil {
		return ""
	}
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	switch b[0] {
	case 0x00:
		return false
	case 0x01:
		return true
	default:
		r.err = ErrBadBool
		return false
	}
}
