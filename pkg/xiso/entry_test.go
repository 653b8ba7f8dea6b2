package xiso

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryEncodedSize(t *testing.T) {
	tests := []struct {
		name string
		want SizeBytes
	}{
		{"ab", 16},          // 14 + 2, already aligned
		{"abc", 20},         // 14 + 3 -> pad to 20
		{"default.xbe", 28}, // 14 + 11 -> pad to 28
	}

	for _, tt := range tests {
		assert.EqualValues(t, tt.want, Entry{Name: tt.name}.EncodedSize(), "name %q", tt.name)
	}
}

func TestEntryEncodeDecode(t *testing.T) {
	e := Entry{
		LeftOffset:  7,
		RightOffset: 12,
		NodeSector:  34,
		NodeSize:    1234,
		Attributes:  AttrFile,
		Name:        "default.xbe",
	}

	var enc Encoder
	e.Encode(&enc)
	enc.PadTo(e.EncodedSize(), 0xFF)

	b := []byte(enc)
	require.Len(t, b, int(e.EncodedSize()))

	assert.EqualValues(t, 7, binary.LittleEndian.Uint16(b[0:2]))
	assert.EqualValues(t, 12, binary.LittleEndian.Uint16(b[2:4]))
	assert.EqualValues(t, 34, binary.LittleEndian.Uint32(b[4:8]))
	assert.EqualValues(t, 1234, binary.LittleEndian.Uint32(b[8:12]))
	assert.Equal(t, AttrFile, b[12])
	assert.EqualValues(t, len("default.xbe"), b[13])
	assert.Equal(t, "default.xbe", string(b[14:14+11]))

	decoded, size, ok := DecodeEntry(b)
	require.True(t, ok)
	assert.Equal(t, e, decoded)
	assert.Equal(t, e.EncodedSize(), size)
}

func TestEntryEmpty(t *testing.T) {
	zero := make([]byte, 14)
	assert.True(t, EntryEmpty(zero))

	ff := make([]byte, 14)
	for i := range ff {
		ff[i] = 0xFF
	}
	assert.True(t, EntryEmpty(ff))

	mixed := make([]byte, 14)
	mixed[4] = 0x21
	assert.False(t, EntryEmpty(mixed))

	assert.True(t, EntryEmpty([]byte{0x01}), "short buffer terminates traversal")
}

func TestHeaderEncode(t *testing.T) {
	b := Header{RootSector: 33, RootSize: 512}.Encode()
	require.Len(t, b, int(SectorSize))

	assert.Equal(t, VolumeMagic, string(b[:20]))
	assert.Equal(t, VolumeMagic, string(b[2028:]))
	assert.Equal(t, []byte{0x21, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00}, b[20:28])

	for i := 28; i < 2028; i++ {
		require.Zero(t, b[i], "byte %d", i)
	}
}

func TestSectorMath(t *testing.T) {
	assert.EqualValues(t, 0, SizeBytes(0).CeilSector())
	assert.EqualValues(t, 2048, SizeBytes(1).CeilSector())
	assert.EqualValues(t, 2048, SizeBytes(2048).CeilSector())
	assert.EqualValues(t, 4096, SizeBytes(2049).CeilSector())

	assert.EqualValues(t, 65536, HeaderSector.Bytes())

	assert.Equal(t, 0, Pad4(16))
	assert.Equal(t, 3, Pad4(17))
	assert.Equal(t, 1, Pad4(19))
}
