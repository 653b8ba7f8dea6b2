package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParseJSON(t *testing.T) {
	doc := `{
		"title_id": "4D530004",
		"name": "widescreen fix",
		"author": "someone",
		"data": [
			{
				"operations": [
					{"address": 4660, "patched_data": "90909090"},
					{"original_data": "deadbeef", "patched_data": "feedface"}
				]
			}
		]
	}`

	p, err := ParseJSON(writeTemp(t, "ws.json", []byte(doc)))
	require.NoError(t, err)

	assert.Equal(t, "widescreen fix", p.Name)
	assert.Equal(t, "4d530004", p.TitleID)
	assert.Equal(t, "someone", p.Author)
	assert.Equal(t, "default.xbe", p.TargetFile)
	require.Len(t, p.Operations, 2)

	assert.EqualValues(t, 4660, p.Operations[0].Address)
	assert.Equal(t, []byte{0x90, 0x90, 0x90, 0x90}, p.Operations[0].PatchedBytes)
	assert.Nil(t, p.Operations[0].OriginalBytes)

	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, p.Operations[1].OriginalBytes)
	assert.Equal(t, []byte{0xFE, 0xED, 0xFA, 0xCE}, p.Operations[1].PatchedBytes)
}

func TestParseJSONRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing data", `{"title_id": "12345678"}`},
		{"operation missing patched_data", `{"data": [{"operations": [{"address": 1}]}]}`},
		{"operation missing address and original_data", `{"data": [{"operations": [{"patched_data": "90"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON(writeTemp(t, "bad.json", []byte(tt.doc)))
			assert.Error(t, err)
		})
	}
}

func TestParseIPS(t *testing.T) {
	data := []byte("PATCH")
	// Record: address 0x00ABCD, length 3, payload 01 02 03.
	data = append(data, 0x00, 0xAB, 0xCD, 0x00, 0x03, 0x01, 0x02, 0x03)
	// RLE record: address 0x000010, length 0, run 4 of byte 0xAA.
	data = append(data, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x04, 0xAA)
	data = append(data, []byte("EOF")...)

	p, err := ParseIPS(writeTemp(t, "fix.ips", data))
	require.NoError(t, err)

	assert.Equal(t, "fix", p.Name)
	assert.Empty(t, p.TitleID)
	assert.Equal(t, "default.xbe", p.TargetFile)
	require.Len(t, p.Operations, 2)

	assert.EqualValues(t, 0xABCD, p.Operations[0].Address)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, p.Operations[0].PatchedBytes)

	assert.EqualValues(t, 0x10, p.Operations[1].Address)
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA}, p.Operations[1].PatchedBytes)
}

func TestParseIPSBadMagic(t *testing.T) {
	_, err := ParseIPS(writeTemp(t, "bad.ips", []byte("NOPATCH")))
	assert.Error(t, err)
}

func TestParseJMP(t *testing.T) {
	doc := "#Jay's Magic Patcher (www.jayxbox.com)\n" +
		"system=Xbox\n" +
		"title=Some Game\n" +
		"region=NTSC\n" +
		"version=4D530004 1.0\n" +
		"author=jay\n" +
		"notes=bypass check\n" +
		"#first pair\n" +
		"deadbeef\n" +
		"feedface\n"

	p, err := ParseJMP(writeTemp(t, "game.jmp", []byte(doc)))
	require.NoError(t, err)

	assert.Equal(t, "4d530004", p.TitleID)
	assert.Equal(t, "jay", p.Author)
	assert.Equal(t, "default.xbe", p.TargetFile)
	require.Len(t, p.Operations, 1)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, p.Operations[0].OriginalBytes)
	assert.Equal(t, []byte{0xFE, 0xED, 0xFA, 0xCE}, p.Operations[0].PatchedBytes)
}

func TestParseJMPForeignTargetUnresolved(t *testing.T) {
	doc := "#Jay's Magic Patcher (www.jayxbox.com)\n" +
		"system=Xbox\n" +
		"title=Some Game\n" +
		"region=NTSC\n" +
		"version=4D530004 1.0\n" +
		"author=jay\n" +
		"notes=patches game.xbe, not the default one\n" +
		"deadbeef\n" +
		"feedface\n"

	p, err := ParseJMP(writeTemp(t, "game.jmp", []byte(doc)))
	require.NoError(t, err)

	// A mention of another .xbe leaves the target unresolved; the
	// engine drops the patch at resolve time instead of guessing.
	assert.Empty(t, p.TargetFile)
}

func TestParseJMPBadHeader(t *testing.T) {
	_, err := ParseJMP(writeTemp(t, "bad.jmp", []byte("#Someone Else's Patcher\nsystem=Xbox\n")))
	assert.Error(t, err)
}

func TestParseFileDispatch(t *testing.T) {
	p, err := ParseFile(writeTemp(t, "notes.txt", []byte("hello")))
	require.NoError(t, err)
	assert.Nil(t, p, "unknown extension is silently not a patch")
}
