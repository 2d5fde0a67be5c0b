// Package hoarderr defines the typed error kinds surfaced by the hoard core.
//
// Every package in the core wraps errors the way pkg/storage wraps BoltDB
// errors (fmt.Errorf with %w), but adds a Kind so callers can branch with
// errors.Is instead of matching on message text.
package hoarderr

import "fmt"

// Kind classifies a core error.
type Kind string

const (
	MissingRoot           Kind = "missing_root"
	MissingObject          Kind = "missing_object"
	CorruptObject          Kind = "corrupt_object"
	DeferredOpsNotFlushed   Kind = "deferred_ops_not_flushed"
	InconsistentStore       Kind = "inconsistent_store"
	InvariantViolation      Kind = "invariant_violation"
	BadPath                 Kind = "bad_path"
	UnknownCave             Kind = "unknown_cave"
	WrongCaveType           Kind = "wrong_cave_type"
)

// Error is a core error tagged with a Kind. Two *Errors compare equal under
// errors.Is when their Kinds match, regardless of message or wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for kind-only comparison: errors.Is(err, hoarderr.New(MissingRoot, ""))
// matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Of reports whether err is a core error of the given kind.
func Of(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if he, ok := err.(*Error); ok {
			e = he
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return e != nil && e.Kind == kind
}
