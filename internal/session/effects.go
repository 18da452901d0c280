package session

import (
	"context"

	"github.com/buckleypaul/cloudeditor/internal/status"
)

// Notifier tells the opener window whether the view is streaming.
type Notifier interface {
	SendActive() error
	SendInactive() error
}

// Effects runs status transitions against a Service. A nil Notifier
// means there is no opener to tell.
type Effects struct {
	Service  *Service
	Notifier Notifier
}

var _ status.Effects = Effects{}

func (e Effects) NotifyActive(context.Context) error {
	if e.Notifier == nil {
		return nil
	}
	return e.Notifier.SendActive()
}

func (e Effects) NotifyInactive(context.Context) error {
	if e.Notifier == nil {
		return nil
	}
	return e.Notifier.SendInactive()
}

func (e Effects) CancelSession(ctx context.Context, port string) error {
	return e.Service.Cancel(ctx, port)
}

func (e Effects) ClearOutput(context.Context) error {
	e.Service.Clear()
	return nil
}
