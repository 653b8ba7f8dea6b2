// Package materializer implements the two TocBuilder backends (XISO
// passthrough and Directory synthesis), the byte-range Materializer that
// serves bytes from a built toc.Model via a searchtree.Tree, and XBE
// certificate parsing for title identification.
package materializer

import (
	"github.com/wilkovatch/http-xiso-wrapper/pkg/toc"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

// TocBuilder is the shared capability set of both backends, modeled as a
// tagged-variant interface rather than a class hierarchy (per the
// design note on avoiding inheritance-shaped solutions).
type TocBuilder interface {
	// BuildTOC populates and returns the region model for this input.
	BuildTOC() (*toc.Model, error)

	// ReadFileBytes reads length bytes of the FILE region at path,
	// starting at the file-relative offset.
	ReadFileBytes(path string, offset xiso.SizeBytes, length int) ([]byte, error)

	// RequiresMediaPatch reports whether this input's image origin is
	// non-zero, so the façade must prepend the automatic media patch.
	RequiresMediaPatch() bool

	// OutputSize is the total byte length of the synthesized/passthrough
	// output.
	OutputSize() xiso.SizeBytes
}
