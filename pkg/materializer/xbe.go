package materializer

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// TitleInfo is the game identity extracted from default.xbe's
// certificate, used to select patches by title id. A zero value
// means extraction failed or the certificate was absent/malformed; this
// is logged by the caller, never treated as a fatal façade error.
type TitleInfo struct {
	TitleID   string // 8 lowercase hex chars, or "" if unavailable
	TitleName string
}

const (
	// XBEMagic is the 4-byte signature at the start of an XBE executable.
	XBEMagic = "XBEH"

	xbeCertOffsetFieldOffset = 280
	xbeCertLength            = 492
	xbeCertTitleIDOffset     = 8
	xbeCertTitleNameOffset   = 12
	xbeCertTitleNameLength   = 40
)

// ExtractXBEInfo reads the certificate offset at byte 280 of an XBE file
// of the given size and, if present, the title id and UTF-16LE title
// name from it. read is a narrow capability over the already-open
// default.xbe file.
func ExtractXBEInfo(size int64, read func(offset int64, length int) ([]byte, error)) (TitleInfo, error) {
	magic, err := read(0, 4)
	if err != nil || string(magic) != XBEMagic {
		return TitleInfo{}, nil
	}

	head, err := read(xbeCertOffsetFieldOffset, 2)
	if err != nil {
		return TitleInfo{}, fmt.Errorf("materializer: read xbe cert pointer: %w", err)
	}
	if len(head) < 2 {
		return TitleInfo{}, nil
	}

	certOffset := binary.LittleEndian.Uint16(head)
	if certOffset == 0 || int64(certOffset)+xbeCertLength > size {
		return TitleInfo{}, nil
	}

	idBytes, err := read(int64(certOffset)+xbeCertTitleIDOffset, 4)
	if err != nil || len(idBytes) < 4 {
		return TitleInfo{}, nil
	}
	titleID := fmt.Sprintf("%02x%02x%02x%02x", idBytes[3], idBytes[2], idBytes[1], idBytes[0])

	nameBytes, err := read(int64(certOffset)+xbeCertTitleNameOffset, xbeCertTitleNameLength)
	if err != nil {
		return TitleInfo{TitleID: titleID}, nil
	}

	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, err := decoder.Bytes(nameBytes)
	if err != nil {
		return TitleInfo{TitleID: titleID}, nil
	}

	name := trimTrailingNUL(decoded)

	return TitleInfo{TitleID: titleID, TitleName: name}, nil
}

func trimTrailingNUL(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
