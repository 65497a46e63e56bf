package bytecode

import (
	"encoding/binary"
	"math"
)

// Buffer is an append-only little-endian byte builder shared by the IR
// emitter (building one basic block's instruction stream) and the image
// writer (building the function directory and string tables). Everything
// is little-endian and fixed width.
type Buffer struct {
	b []byte
}

func (w *Buffer) Bytes() []byte { return w.b }
func (w *Buffer) Len() int      { return len(w.b) }

func (w *Buffer) WriteByte2(b byte) { w.b = append(w.b, b) }

func (w *Buffer) WriteOp(op Op) { w.b = append(w.b, byte(op)) }

func (w *Buffer) WriteU8(v uint8) { w.b = append(w.b, v) }

func (w *Buffer) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *Buffer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Buffer) WriteI64(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	w.b = append(w.b, tmp[:]...)
}

func (w *Buffer) WriteF64(v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	w.b = append(w.b, tmp[:]...)
}

func (w *Buffer) WriteStr(s string) {
	w.WriteU32(uint32(len(s)))
	w.b = append(w.b, s...)
}

func (w *Buffer) WriteBytes(p []byte) { w.b = append(w.b, p...) }

// Cursor reads sequentially from a byte slice, the counterpart to Buffer
// used by the VM's execution loop and the image reader.
type Cursor struct {
	Buf []byte
	Pos int
}

func NewCursor(buf []byte) *Cursor { return &Cursor{Buf: buf} }

func (c *Cursor) Done() bool { return c.Pos >= len(c.Buf) }

func (c *Cursor) ReadByte() byte {
	v := c.Buf[c.Pos]
	c.Pos++
	return v
}

func (c *Cursor) ReadOp() Op { return Op(c.ReadByte()) }

func (c *Cursor) ReadU8() uint8 { return c.ReadByte() }

func (c *Cursor) ReadU32() uint32 {
	v := binary.LittleEndian.Uint32(c.Buf[c.Pos : c.Pos+4])
	c.Pos += 4
	return v
}

func (c *Cursor) ReadI32() int32 { return int32(c.ReadU32()) }

func (c *Cursor) ReadI64() int64 {
	v := binary.LittleEndian.Uint64(c.Buf[c.Pos : c.Pos+8])
	c.Pos += 8
	return int64(v)
}

func (c *Cursor) ReadF64() float64 {
	v := binary.LittleEndian.Uint64(c.Buf[c.Pos : c.Pos+8])
	c.Pos += 8
	return math.Float64frombits(v)
}

func (c *Cursor) ReadStr() string {
	n := c.ReadU32()
	s := string(c.Buf[c.Pos : c.Pos+int(n)])
	c.Pos += int(n)
	return s
}
