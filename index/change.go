package index

// Status classifies a file relative to a prior DigestIndex.
type Status int

const (
	New Status = iota
	Changed
	Unchanged
)

func (s Status) String() string {
	switch s {
	case New:
		return "new"
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Classify decides whether path is new, changed, or unchanged relative to
// prior. A nil prior means every file is New, the way a first backup run
// has nothing to compare against.
func Classify(path, freshHex string, prior *DigestIndex) (Status, error) {
	if prior == nil {
		return New, nil
	}
	priorHex, ok, err := prior.Lookup(path)
	if err != nil {
		return New, err
	}
	if !ok {
		return New, nil
	}
	if priorHex == freshHex {
		return Unchanged, nil
	}
	return Changed, nil
}
