package main

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
)

// watchUploading calls fn whenever the upload status of ds enters or
// leaves IN_PROG.
func watchUploading(ds *devicestate.Store, fn func(bool)) func() {
	var uploading atomic.Bool
	uploading.Store(ds.State().UploadStatus == devicestate.UploadInProgress)
	return devicestate.StateChanges(ds.Set, ds.State()).Subscribe(reactive.Observer[devicestate.State]{
		Next: func(st devicestate.State) {
			now := st.UploadStatus == devicestate.UploadInProgress
			if uploading.Swap(now) != now {
				fn(now)
			}
		},
	})
}

// programRef lets pages built before the program send into it.
type programRef struct {
	p atomic.Pointer[tea.Program]
}

func (r *programRef) Send(msg tea.Msg) {
	if p := r.p.Load(); p != nil {
		p.Send(msg)
	}
}
