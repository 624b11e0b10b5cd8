package conversion

import "fmt"

// State is a step in the lifecycle of a single conversion operation.
type State int

const (
	Init State = iota
	Loaded
	PrimaryEncoded
	ArtworkAttempted
	MetadataAttempted
	OutputRead
	CleanedUp
	Done
)

func (s State) String() string {
	names := []string{"INIT", "LOADED", "PRIMARY_ENCODED", "ARTWORK_ATTEMPTED", "METADATA_ATTEMPTED", "OUTPUT_READ", "CLEANED_UP", "DONE"}
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}

	return fmt.Sprintf("%s[%d]", names[s], s)
}
