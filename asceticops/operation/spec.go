package operation

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrUnknownAction = errors.New("operation: unknown action")
	ErrModelRequired = errors.New("operation: model is required")
)

// Spec describes the database operation a deferred promise represents.
// It is a value: a promise keeps its own copy and never changes it.
// Args is shared by reference and must not be mutated after construction.
type Spec struct {
	Args   any
	Action Action
	Model  string
}

func NewSpec(model string, action Action, args any) Spec {
	return Spec{Args: args, Action: action, Model: model}
}

// Raw describes a raw statement for ExecuteRaw and QueryRaw.
type Raw struct {
	Query      string `json:"query"`
	Parameters []any  `json:"parameters"`
}

func NewRawSpec(action Action, query string, parameters ...any) Spec {
	return Spec{Args: Raw{Query: query, Parameters: parameters}, Action: action}
}

func (s Spec) Validate() error {
	if !s.Action.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, string(s.Action))
	}
	if s.Model == "" && !s.Action.IsRaw() {
		return fmt.Errorf("%w for %s", ErrModelRequired, s.Action)
	}
	return nil
}

// Equal compares two specs structurally.
func (s Spec) Equal(other Spec) bool {
	return s.Action == other.Action &&
		s.Model == other.Model &&
		reflect.DeepEqual(s.Args, other.Args)
}

func (s Spec) String() string {
	if s.Model == "" {
		return s.Action.String()
	}
	return s.Model + "." + s.Action.String()
}
