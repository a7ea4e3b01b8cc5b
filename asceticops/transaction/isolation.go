package transaction

import (
	"fmt"
	"strings"
)

// IsolationLevel is forwarded verbatim to the engine. Unspecified leaves the
// engine default in place.
type IsolationLevel string

const (
	Unspecified     IsolationLevel = ""
	ReadUncommitted IsolationLevel = "ReadUncommitted"
	ReadCommitted   IsolationLevel = "ReadCommitted"
	RepeatableRead  IsolationLevel = "RepeatableRead"
	Snapshot        IsolationLevel = "Snapshot"
	Serializable    IsolationLevel = "Serializable"
)

var isolationLevels = []IsolationLevel{
	ReadUncommitted,
	ReadCommitted,
	RepeatableRead,
	Snapshot,
	Serializable,
}

// ParseIsolationLevel accepts the canonical names in any case, with optional
// spaces, dashes or underscores ("read committed", "REPEATABLE_READ").
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	normalized := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.TrimSpace(s))
	if normalized == "" {
		return Unspecified, nil
	}
	for _, level := range isolationLevels {
		if strings.EqualFold(normalized, string(level)) {
			return level, nil
		}
	}
	return Unspecified, fmt.Errorf("%w: %q", ErrUnknownIsolation, s)
}

func (l IsolationLevel) IsValid() bool {
	if l == Unspecified {
		return true
	}
	for _, level := range isolationLevels {
		if l == level {
			return true
		}
	}
	return false
}

func (l IsolationLevel) IsSpecified() bool {
	return l != Unspecified
}

func (l IsolationLevel) String() string {
	return string(l)
}
