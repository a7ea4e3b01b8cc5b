package operation

import "fmt"

// Action is the kind of database operation a Spec describes.
type Action string

const (
	FindUnique          Action = "findUnique"
	FindUniqueOrThrow   Action = "findUniqueOrThrow"
	FindFirst           Action = "findFirst"
	FindFirstOrThrow    Action = "findFirstOrThrow"
	FindMany            Action = "findMany"
	CreateOne           Action = "createOne"
	CreateMany          Action = "createMany"
	CreateManyAndReturn Action = "createManyAndReturn"
	UpdateOne           Action = "updateOne"
	UpdateMany          Action = "updateMany"
	UpsertOne           Action = "upsertOne"
	DeleteOne           Action = "deleteOne"
	DeleteMany          Action = "deleteMany"
	GroupBy             Action = "groupBy"
	Aggregate           Action = "aggregate"
	ExecuteRaw          Action = "executeRaw"
	QueryRaw            Action = "queryRaw"
	RunCommandRaw       Action = "runCommandRaw"
)

var actions = map[Action]struct {
	write bool
	raw   bool
}{
	FindUnique:          {},
	FindUniqueOrThrow:   {},
	FindFirst:           {},
	FindFirstOrThrow:    {},
	FindMany:            {},
	CreateOne:           {write: true},
	CreateMany:          {write: true},
	CreateManyAndReturn: {write: true},
	UpdateOne:           {write: true},
	UpdateMany:          {write: true},
	UpsertOne:           {write: true},
	DeleteOne:           {write: true},
	DeleteMany:          {write: true},
	GroupBy:             {},
	Aggregate:           {},
	ExecuteRaw:          {write: true, raw: true},
	QueryRaw:            {raw: true},
	RunCommandRaw:       {write: true, raw: true},
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

func (a Action) IsValid() bool {
	_, ok := actions[a]
	return ok
}

// IsWrite reports whether the action may modify data.
func (a Action) IsWrite() bool {
	return actions[a].write
}

// IsRaw reports whether the action carries a raw statement instead of a model query.
func (a Action) IsRaw() bool {
	return actions[a].raw
}

func (a Action) String() string {
	return string(a)
}
