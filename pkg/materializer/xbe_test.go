package materializer_test

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/materializer"
)

// buildXBE assembles a minimal default.xbe: magic, certificate pointer
// at offset 280, title id at cert+8 and UTF-16LE title name at cert+12.
func buildXBE(certOffset uint16, titleID [4]byte, titleName string) []byte {
	size := 1024
	b := make([]byte, size)
	copy(b, "XBEH")
	binary.LittleEndian.PutUint16(b[280:], certOffset)

	if certOffset != 0 {
		copy(b[int(certOffset)+8:], titleID[:])
		for i, r := range utf16.Encode([]rune(titleName)) {
			binary.LittleEndian.PutUint16(b[int(certOffset)+12+2*i:], r)
		}
	}
	return b
}

func readFuncFor(data []byte) func(offset int64, length int) ([]byte, error) {
	return func(offset int64, length int) ([]byte, error) {
		if offset >= int64(len(data)) {
			return nil, nil
		}
		end := offset + int64(length)
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		return data[offset:end], nil
	}
}

func TestExtractXBEInfo(t *testing.T) {
	xbe := buildXBE(300, [4]byte{0x04, 0x00, 0x53, 0x4D}, "Halo")

	info, err := materializer.ExtractXBEInfo(int64(len(xbe)), readFuncFor(xbe))
	require.NoError(t, err)

	assert.Equal(t, "4d530004", info.TitleID)
	assert.Equal(t, "Halo", info.TitleName)
}

func TestExtractXBEInfoNoCertificate(t *testing.T) {
	xbe := buildXBE(0, [4]byte{}, "")

	info, err := materializer.ExtractXBEInfo(int64(len(xbe)), readFuncFor(xbe))
	require.NoError(t, err)
	assert.Empty(t, info.TitleID)
	assert.Empty(t, info.TitleName)
}

func TestExtractXBEInfoCertificatePastEOF(t *testing.T) {
	xbe := buildXBE(900, [4]byte{0x01, 0x02, 0x03, 0x04}, "x")

	info, err := materializer.ExtractXBEInfo(int64(len(xbe)), readFuncFor(xbe))
	require.NoError(t, err)
	assert.Empty(t, info.TitleID)
}

func TestExtractXBEInfoNotAnXBE(t *testing.T) {
	data := make([]byte, 1024)
	copy(data, "ELF!")

	info, err := materializer.ExtractXBEInfo(int64(len(data)), readFuncFor(data))
	require.NoError(t, err)
	assert.Empty(t, info.TitleID)
}
