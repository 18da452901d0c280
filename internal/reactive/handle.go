package reactive

// SetOptions tune a single state update.
type SetOptions struct {
	// Quiet suppresses the state-change notification for the update.
	Quiet bool
}

// SetOption configures a state update.
type SetOption func(*SetOptions)

// Quiet marks an update as not worth broadcasting.
func Quiet() SetOption {
	return func(o *SetOptions) { o.Quiet = true }
}

// ApplySetOptions folds opts into a SetOptions value.
func ApplySetOptions(opts ...SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Setter is the only way the core writes shared state. The host applies
// patch to a copy of its current snapshot, stores the result and returns
// it.
type Setter[S any] func(patch func(*S), opts ...SetOption) S

// Handle names a subject-valued field of a state snapshot.
type Handle[S, T any] struct {
	Get func(S) *Subject[T]
	Put func(*S, *Subject[T])
	// New builds the subject; nil means NewSubject.
	New func() *Subject[T]
}

func (h Handle[S, T]) build() *Subject[T] {
	if h.New != nil {
		return h.New()
	}
	return NewSubject[T]()
}

// Instantiate creates the subject for h and stores it through set. The
// store only takes it if the field is still empty, so concurrent callers
// holding stale snapshots end up sharing one subject; the stored one is
// returned.
func Instantiate[S, T any](set Setter[S], h Handle[S, T]) *Subject[T] {
	created := h.build()
	next := set(func(s *S) {
		if h.Get(*s) == nil {
			h.Put(s, created)
		}
	}, Quiet())
	return h.Get(next)
}

// GetOrCreate returns the subject stored in state, instantiating it on
// first use.
func GetOrCreate[S, T any](set Setter[S], state S, h Handle[S, T]) *Subject[T] {
	if sub := h.Get(state); sub != nil {
		return sub
	}
	return Instantiate(set, h)
}

// NextOn pushes v on the subject for h, creating it if needed.
func NextOn[S, T any](set Setter[S], state S, h Handle[S, T], v T) {
	GetOrCreate(set, state, h).Next(v)
}

// Emit pushes v on sub without any lookup.
func Emit[T any](v T, sub *Subject[T]) {
	sub.Next(v)
}

// Release empties the field for h. The subject itself is left as is.
func Release[S, T any](set Setter[S], h Handle[S, T]) {
	set(func(s *S) { h.Put(s, nil) }, Quiet())
}
