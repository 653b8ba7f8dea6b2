package xiso

import "encoding/binary"

// Encoder builds an XISO byte region incrementally.
type Encoder []byte

func (e *Encoder) Size() SizeBytes { return SizeBytes(len(*e)) }

func (e *Encoder) AppendByte(b byte) { *e = append(*e, b) }

func (e *Encoder) AppendUint16LE(v uint16) {
	*e = binary.LittleEndian.AppendUint16(*e, v)
}

func (e *Encoder) AppendUint32LE(v uint32) {
	*e = binary.LittleEndian.AppendUint32(*e, v)
}

func (e *Encoder) AppendBytes(b []byte) { *e = append(*e, b...) }

// AppendFill appends n bytes each equal to fill.
func (e *Encoder) AppendFill(n int, fill byte) {
	if n <= 0 {
		return
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = fill
	}
	*e = append(*e, buf...)
}

func (e *Encoder) AppendZeroes(n int) { e.AppendFill(n, 0) }

// PadTo pads the encoder with fill bytes until it reaches exactly size.
// Panics if the encoder already exceeds size.
func (e *Encoder) PadTo(size SizeBytes, fill byte) {
	cur := e.Size()
	if cur > size {
		panic("xiso: encoded region larger than its declared size")
	}
	e.AppendFill(int(size-cur), fill)
}
