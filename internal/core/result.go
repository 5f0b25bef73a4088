package core

// Mode says where an engine value came from.
type Mode string

const (
	// ModeOK is a genuine model answer.
	ModeOK Mode = "ok"
	// ModeUnconfigured is a placeholder returned because no API key is set.
	ModeUnconfigured Mode = "unconfigured"
	// ModeDegraded is a fallback returned because the call or parse failed.
	ModeDegraded Mode = "degraded"
)

// Result is an engine value tagged with its Mode. Err carries the cause of
// a degraded result and is nil otherwise.
type Result[T any] struct {
	Value T
	Mode  Mode
	Err   error
}

func (r Result[T]) OK() bool { return r.Mode == ModeOK }

func okResult[T any](v T) Result[T] {
	return Result[T]{Value: v, Mode: ModeOK}
}

func unconfigured[T any](v T) Result[T] {
	return Result[T]{Value: v, Mode: ModeUnconfigured}
}

func degraded[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Mode: ModeDegraded, Err: err}
}

// worst combines modes of a multi-step operation: unconfigured beats
// degraded beats ok.
func worst(modes ...Mode) Mode {
	out := ModeOK
	for _, m := range modes {
		switch {
		case m == ModeUnconfigured:
			return ModeUnconfigured
		case m == ModeDegraded:
			out = ModeDegraded
		}
	}
	return out
}
