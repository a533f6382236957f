// Package packet provides little-endian wire encoding helpers for fixed-layout
// protocol structures. Every field is written and read explicitly; nothing in
// this package depends on Go struct layout or alignment.
package packet

import (
	"encoding/binary"
	"fmt"
)

// AppendUint8 appends a single byte.
func AppendUint8(buf []byte, v uint8) []byte {
	return append(buf, v)
}

// AppendInt8 appends a single signed byte.
func AppendInt8(buf []byte, v int8) []byte {
	return append(buf, byte(v))
}

// AppendUint16 appends v in little-endian order.
func AppendUint16(buf []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, v)
}

// AppendInt16 appends v in little-endian order.
func AppendInt16(buf []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(buf, uint16(v))
}

// AppendUint32 appends v in little-endian order.
func AppendUint32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

// AppendBytes appends raw bytes unchanged.
func AppendBytes(buf []byte, p []byte) []byte {
	return append(buf, p...)
}

// Reader consumes a byte sequence field by field. Reads past the end return
// an error from Err and zero values; callers check Err once after decoding.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over buf. The Reader does not copy buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered while reading.
func (r *Reader) Err() error {
	return r.err
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Len() < n {
		r.err = fmt.Errorf("packet: need %d bytes, have %d", n, r.Len())
		return nil
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

// Int8 reads a single signed byte.
func (r *Reader) Int8() int8 {
	return int8(r.Uint8())
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

// Int16 reads a little-endian int16.
func (r *Reader) Int16() int16 {
	return int16(r.Uint16())
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

// Bytes reads n raw bytes into a fresh slice.
func (r *Reader) Bytes(n int) []byte {
	p := r.take(n)
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

// Rest reads all remaining bytes into a fresh slice.
func (r *Reader) Rest() []byte {
	return r.Bytes(r.Len())
}
