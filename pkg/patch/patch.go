// Package patch parses the three on-disk patch file formats (JSON, IPS,
// JMP) into a common canonical form, and resolves/applies them against a
// materialized XISO.
package patch

// Operation is one canonical, address-based patch operation once
// resolved. OriginalBytes is non-nil only before resolution, when the
// operation still needs its address located by pattern search.
type Operation struct {
	Address       int64
	OriginalBytes []byte // nil once resolved
	PatchedBytes  []byte
}

func (o Operation) resolved() bool { return o.OriginalBytes == nil }

// Patch is one parsed patch file in canonical form.
type Patch struct {
	Name       string
	TitleID    string // lowercase 8-hex-char, or "" if unspecified
	TargetFile string // "" means unresolved (e.g. a JMP patch that touches a non-default.xbe file)
	Author     string
	Operations []Operation
}

const (
	defaultTargetFile = "default.xbe"

	// mediaPatchOriginalHex and mediaPatchPatchedHex are the fixed instruction
	// bytes rewritten to bypass the originality check on Redump-style
	// dumps, whose image origin is non-zero.
	mediaPatchOriginalHex = "E8CAFDFFFF85C07D"
	mediaPatchPatchedHex  = "E8CAFDFFFF85C0EB"
)

// MediaPatch synthesizes the fixed media-check-bypass patch for a given
// title, to be prepended ahead of user patches whenever the active image
// has a non-zero origin (see xiso.RedumpOrigin).
func MediaPatch(titleID string) Patch {
	return Patch{
		Name:       "media-patch",
		TitleID:    titleID,
		TargetFile: defaultTargetFile,
		Operations: []Operation{{
			OriginalBytes: mustHex(mediaPatchOriginalHex),
			PatchedBytes:  mustHex(mediaPatchPatchedHex),
		}},
	}
}
