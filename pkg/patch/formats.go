package patch

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("patch: invalid builtin hex literal: " + s)
	}
	return b
}

// ParseFile dispatches on the file extension to the matching format
// parser. An unrecognized extension returns (nil, nil): not a patch,
// not an error. The caller logs.
func ParseFile(path string) (*Patch, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(path)
	case ".ips":
		return ParseIPS(path)
	case ".jmp":
		return ParseJMP(path)
	default:
		return nil, nil
	}
}

// jsonOperation mirrors the on-disk JSON operation schema: either
// address-based or original-bytes-based, both requiring patched_data.
type jsonOperation struct {
	Address      *int64  `json:"address,omitempty"`
	OriginalData *string `json:"original_data,omitempty"`
	PatchedData  *string `json:"patched_data"`
}

type jsonSubpatch struct {
	File       string          `json:"file,omitempty"`
	Operations []jsonOperation `json:"operations"`
}

type jsonDoc struct {
	TitleID *string        `json:"title_id,omitempty"`
	Name    *string        `json:"name,omitempty"`
	Author  *string        `json:"author,omitempty"`
	Data    []jsonSubpatch `json:"data"`
}

// ParseJSON parses the JSON patch format. A patch file may carry
// several subpatches targeting different files; since the in-memory
// Patch carries one TargetFile, only the subpatches for the first
// subpatch's target file are kept, and subpatches for any other file
// are skipped.
func ParseJSON(path string) (*Patch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patch file: %w", err)
	}
	defer f.Close()

	var doc jsonDoc
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json patch: %w", err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("json patch missing \"data\"")
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	titleID := ""
	if doc.TitleID != nil {
		titleID = strings.ToLower(*doc.TitleID)
	}
	author := ""
	if doc.Author != nil {
		author = *doc.Author
	}
	if doc.Name != nil {
		name = *doc.Name
	}

	p := &Patch{Name: name, TitleID: titleID, Author: author}

	for _, sub := range doc.Data {
		target := sub.File
		if target == "" {
			target = defaultTargetFile
		}
		if p.TargetFile == "" {
			p.TargetFile = target
		} else if p.TargetFile != target {
			// A single canonical Patch carries one target file; additional
			// targets beyond the first are dropped rather than silently
			// merged into the wrong file.
			continue
		}

		for _, op := range sub.Operations {
			if op.PatchedData == nil {
				return nil, fmt.Errorf("json patch operation missing patched_data")
			}
			patched, err := hex.DecodeString(*op.PatchedData)
			if err != nil {
				return nil, fmt.Errorf("json patch patched_data: %w", err)
			}

			switch {
			case op.Address != nil:
				p.Operations = append(p.Operations, Operation{Address: *op.Address, PatchedBytes: patched})
			case op.OriginalData != nil:
				orig, err := hex.DecodeString(*op.OriginalData)
				if err != nil {
					return nil, fmt.Errorf("json patch original_data: %w", err)
				}
				p.Operations = append(p.Operations, Operation{OriginalBytes: orig, PatchedBytes: patched})
			default:
				return nil, fmt.Errorf("json patch operation missing address and original_data")
			}
		}
	}

	return p, nil
}

// ParseIPS parses the IPS format: 5-byte "PATCH" magic, then
// {3-byte BE address, 2-byte BE length, payload} records terminated by
// the literal ASCII "EOF", with a length-0 record meaning RLE.
func ParseIPS(path string) (*Patch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patch file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, 5)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read ips magic: %w", err)
	}
	if string(magic) != "PATCH" {
		return nil, fmt.Errorf("not an ips patch: bad magic")
	}

	var ops []Operation
	for {
		addrBuf := make([]byte, 3)
		if _, err := io.ReadFull(r, addrBuf); err != nil {
			return nil, fmt.Errorf("read ips record address: %w", err)
		}
		if string(addrBuf) == "EOF" {
			break
		}
		address := int64(addrBuf[0])<<16 | int64(addrBuf[1])<<8 | int64(addrBuf[2])

		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return nil, fmt.Errorf("read ips record length: %w", err)
		}
		length := binary.BigEndian.Uint16(lenBuf)

		var payload []byte
		if length == 0 {
			runBuf := make([]byte, 2)
			if _, err := io.ReadFull(r, runBuf); err != nil {
				return nil, fmt.Errorf("read ips rle run length: %w", err)
			}
			runLength := binary.BigEndian.Uint16(runBuf)
			b := make([]byte, 1)
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, fmt.Errorf("read ips rle byte: %w", err)
			}
			payload = make([]byte, runLength)
			for i := range payload {
				payload[i] = b[0]
			}
		} else {
			payload = make([]byte, length)
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, fmt.Errorf("read ips payload: %w", err)
			}
		}

		ops = append(ops, Operation{Address: address, PatchedBytes: payload})
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Patch{Name: name, TargetFile: defaultTargetFile, Operations: ops}, nil
}

// ParseJMP parses Jay's Magic Patcher format: a fixed text header
// followed by find/replace line pairs, with '#'-prefixed comment lines.
func ParseJMP(path string) (*Patch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patch file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	readLine := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimRight(sc.Text(), "\r\n"), true
	}

	header, ok := readLine()
	if !ok || header != "#Jay's Magic Patcher (www.jayxbox.com)" {
		return nil, fmt.Errorf("not a jmp patch: bad header")
	}
	system, ok := readLine()
	if !ok || system != "system=Xbox" {
		return nil, fmt.Errorf("jmp patch: unsupported system")
	}

	kv := func() (string, error) {
		line, ok := readLine()
		if !ok {
			return "", fmt.Errorf("jmp patch: truncated header")
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("jmp patch: malformed header line %q", line)
		}
		return parts[1], nil
	}

	if _, err := kv(); err != nil { // game title, unused
		return nil, err
	}
	if _, err := kv(); err != nil { // region, unused
		return nil, err
	}
	version, err := kv()
	if err != nil {
		return nil, err
	}
	author, err := kv()
	if err != nil {
		return nil, err
	}
	notes, err := kv()
	if err != nil {
		return nil, err
	}

	clean := !strings.Contains(notes, ".xbe")

	var ops []Operation
	var find, replace string
	haveFind, haveReplace := false, false

	for {
		line, ok := readLine()
		if !ok || line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			if strings.Contains(line, ".xbe") {
				clean = false
			}
			continue
		}
		if !haveFind {
			find, haveFind = line, true
		} else if !haveReplace {
			replace, haveReplace = line, true
			orig, err := hex.DecodeString(find)
			if err != nil {
				return nil, fmt.Errorf("jmp patch find bytes: %w", err)
			}
			patched, err := hex.DecodeString(replace)
			if err != nil {
				return nil, fmt.Errorf("jmp patch replace bytes: %w", err)
			}
			ops = append(ops, Operation{OriginalBytes: orig, PatchedBytes: patched})
			haveFind, haveReplace = false, false
		}
	}

	titleID := strings.ToLower(strings.SplitN(version, " ", 2)[0])
	target := ""
	if clean {
		target = defaultTargetFile
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Patch{
		Name:       name,
		TitleID:    titleID,
		Author:     author,
		TargetFile: target,
		Operations: ops,
	}, nil
}
