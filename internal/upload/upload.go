// Package upload accumulates the text an upload backend streams back
// into a single string that late subscribers can pick up at any time.
package upload

import (
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
)

type (
	Chunk  = devicestate.UploadChunk
	Meta   = devicestate.UploadMeta
	Signal = devicestate.UploadSignal
)

const (
	SignalEnd                 = devicestate.SignalEnd
	SignalCompileStreamUpdate = devicestate.SignalCompileStreamUpdate
)

// ConcatHandle holds the accumulated output. It replays the latest value
// to every new subscriber.
var ConcatHandle = reactive.Handle[devicestate.State, string]{
	Get: func(s devicestate.State) *reactive.Subject[string] { return s.UploadConcat },
	Put: func(s *devicestate.State, sub *reactive.Subject[string]) { s.UploadConcat = sub },
	New: reactive.NewReplaySubject[string],
}

// Fold adds c to the accumulated output acc.
func Fold(acc string, c Chunk) string {
	if c.Meta != nil {
		switch c.Meta.Signal {
		case SignalEnd:
			return ""
		case SignalCompileStreamUpdate:
			return c.Value
		}
	}
	if acc == "" {
		return c.Value
	}
	return acc + "\n" + c.Value
}

// Responses returns the raw chunk stream of the scope.
func Responses(set devicestate.Setter, st devicestate.State) *reactive.Subject[Chunk] {
	return reactive.GetOrCreate(set, st, devicestate.UploadResponsesHandle)
}

// Next publishes value on the raw stream. An empty signal is a plain line.
func Next(set devicestate.Setter, st devicestate.State, value string, signal Signal) {
	c := Chunk{Value: value}
	if signal != "" {
		c.Meta = &Meta{Signal: signal}
	}
	reactive.NextOn(set, st, devicestate.UploadResponsesHandle, c)
}

// Concat returns the accumulated output of the scope. The first call
// attaches the accumulator to the raw stream, so only chunks published
// after it are folded in; it completes when the raw stream does.
func Concat(set devicestate.Setter, st devicestate.State) *reactive.Subject[string] {
	if sub := st.UploadConcat; sub != nil {
		return sub
	}
	created := ConcatHandle.New()
	next := set(func(s *devicestate.State) {
		if s.UploadConcat == nil {
			s.UploadConcat = created
		}
	}, reactive.Quiet())
	if next.UploadConcat != created {
		return next.UploadConcat
	}

	acc := ""
	Responses(set, next).Subscribe(reactive.Observer[Chunk]{
		Next: func(c Chunk) {
			acc = Fold(acc, c)
			created.Next(acc)
		},
		Error:    created.Error,
		Complete: created.Complete,
	})
	return created
}

// Clear tears the upload streams of the scope down. Subscribers of the
// accumulated output see it reset to "" before both streams complete.
func Clear(set devicestate.Setter, st devicestate.State) {
	raw := st.UploadResponses
	if raw == nil {
		return
	}
	raw.Next(Chunk{Meta: &Meta{Signal: SignalEnd}})
	raw.Complete()
	reactive.Release(set, devicestate.UploadResponsesHandle)

	concat := st.UploadConcat
	if concat == nil {
		return
	}
	concat.Complete()
	reactive.Release(set, ConcatHandle)
}
