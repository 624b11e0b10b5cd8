package conversion

import (
	"fmt"
	"strings"
)

// Revision identifies an artifact in the chain of intermediate outputs
// produced by a single conversion operation.
type Revision int

const (
	Primary Revision = iota
	Artwork
	Muxed
	MetadataCopied
)

const (
	// ArtifactMarker prefixes the names of every artifact the
	// handler writes in to engine storage.
	ArtifactMarker = "verto_artifact_"

	// IDToken is substituted with the operation identifier when an
	// unresolved output placeholder is finalized.
	IDToken = "{id}"

	// artworkExtension is used for the extracted artwork regardless of
	// the target extension of the conversion.
	artworkExtension = "jpg"
)

func (r Revision) String() string {
	switch r {
	case Primary:
		return fmt.Sprintf("PRIMARY[%d]", r)
	case Artwork:
		return fmt.Sprintf("ARTWORK[%d]", r)
	case Muxed:
		return fmt.Sprintf("MUXED[%d]", r)
	case MetadataCopied:
		return fmt.Sprintf("METADATA_COPIED[%d]", r)
	}

	return fmt.Sprintf("UNKNOWN[%d]", r)
}

// ArtifactName returns the name of the engine artifact for the revision,
// operation identifier and extension provided.
func ArtifactName(rev Revision, id string, extension string) string {
	return fmt.Sprintf("%s%d_%s.%s", ArtifactMarker, rev, id, extension)
}

// Placeholder returns an unresolved output name, which may be used as the
// trailing argument given to Start. The handler substitutes the operation
// identifier in to it before invoking the engine.
func Placeholder(rev Revision, extension string) string {
	return ArtifactName(rev, IDToken, extension)
}

func isPlaceholder(arg string) bool {
	return strings.HasPrefix(arg, ArtifactMarker) && strings.Contains(arg, IDToken)
}

// revisionChain records the artifacts produced during one operation, and
// which of them is the current best output.
type revisionChain struct {
	refs    map[Revision]string
	owned   map[Revision]bool
	current Revision
}

func newRevisionChain() *revisionChain {
	return &revisionChain{refs: make(map[Revision]string), owned: make(map[Revision]bool)}
}

// record stores the reference (an engine artifact name, or a caller supplied
// path if owned is false) for the revision provided.
func (chain *revisionChain) record(rev Revision, ref string, owned bool) {
	chain.refs[rev] = ref
	chain.owned[rev] = owned
}

// advance moves the current revision pointer forward; it never moves backwards.
func (chain *revisionChain) advance(rev Revision) {
	if rev > chain.current {
		chain.current = rev
	}
}

func (chain *revisionChain) currentRef() (string, bool) {
	return chain.refs[chain.current], chain.owned[chain.current]
}

// ownedArtifacts returns the names of all artifacts written by the handler,
// in revision order.
func (chain *revisionChain) ownedArtifacts() []string {
	names := make([]string, 0, len(chain.refs))
	for rev := Primary; rev <= MetadataCopied; rev++ {
		if ref, ok := chain.refs[rev]; ok && chain.owned[rev] {
			names = append(names, ref)
		}
	}

	return names
}
