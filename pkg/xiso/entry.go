package xiso

import "encoding/binary"

// Entry is one on-disc TOC entry: a file or directory reference within a
// parent directory's TOC region, per the XDVDFS binary-tree packing.
type Entry struct {
	LeftOffset  uint16 // in units of 4 bytes, relative to the TOC region start
	RightOffset uint16
	NodeSector  uint32
	NodeSize    uint32
	Attributes  byte
	Name        string
}

func (e Entry) IsDir() bool { return e.Attributes&AttrDirectory != 0 }

// EncodedSize returns the on-disc size of this entry including name and
// the trailing pad4 bytes.
func (e Entry) EncodedSize() SizeBytes {
	n := 14 + len(e.Name)
	return SizeBytes(n + Pad4(n))
}

// Encode appends the entry's 14 fixed bytes plus the name. The trailing
// pad up to EncodedSize is the emitter's concern (it is filled with the
// region fill byte, not zeroes).
func (e Entry) Encode(enc *Encoder) {
	enc.AppendUint16LE(e.LeftOffset)
	enc.AppendUint16LE(e.RightOffset)
	enc.AppendUint32LE(e.NodeSector)
	enc.AppendUint32LE(e.NodeSize)
	enc.AppendByte(e.Attributes)
	enc.AppendByte(byte(len(e.Name)))
	enc.AppendBytes([]byte(e.Name))
}

// EntryEmpty reports whether the first 14 bytes of a TOC entry are the
// sentinel that terminates a sub-tree traversal branch (all 0x00 or all
// 0xFF).
func EntryEmpty(b []byte) bool {
	if len(b) < 14 {
		return true
	}
	allZero, allFF := true, true
	for _, c := range b[:14] {
		if c != 0x00 {
			allZero = false
		}
		if c != 0xFF {
			allFF = false
		}
	}
	return allZero || allFF
}

// DecodeEntry parses a single TOC entry from b, which must start at the
// entry's own offset and extend at least to its end. It returns the
// entry and its on-disc size in bytes.
func DecodeEntry(b []byte) (Entry, SizeBytes, bool) {
	if len(b) < 14 || EntryEmpty(b) {
		return Entry{}, 0, false
	}

	nameLen := int(b[13])
	if nameLen == 0 || 14+nameLen > len(b) {
		return Entry{}, 0, false
	}

	e := Entry{
		LeftOffset:  binary.LittleEndian.Uint16(b[0:2]),
		RightOffset: binary.LittleEndian.Uint16(b[2:4]),
		NodeSector:  binary.LittleEndian.Uint32(b[4:8]),
		NodeSize:    binary.LittleEndian.Uint32(b[8:12]),
		Attributes:  b[12],
		Name:        string(b[14 : 14+nameLen]),
	}
	return e, e.EncodedSize(), true
}

// Header is the decoded volume header at sector 32.
type Header struct {
	RootSector uint32
	RootSize   uint32
}

func (h Header) Encode() []byte {
	var enc Encoder
	enc.AppendBytes([]byte(VolumeMagic))
	enc.AppendUint32LE(h.RootSector)
	enc.AppendUint32LE(h.RootSize)
	enc.AppendZeroes(8) // timestamp, left zeroed
	enc.AppendZeroes(1992)
	enc.AppendBytes([]byte(VolumeMagic))
	return []byte(enc)
}
