package a2a

import (
	"context"

	"github.com/google/uuid"
)

// BrowserService provisions a browser session id for agents with UsesBrowser
// set, per spec.md §4.7. The real implementation lives outside this
// package's scope; NoopBrowserService is the local stub used when no
// browser-backed agent is configured.
type BrowserService interface {
	ProvisionSession(ctx context.Context) (string, error)
}

// NoopBrowserService hands out a fresh random id without opening any actual
// browser resource — enough to exercise the BrowserSessionStarted event path
// in a deployment that doesn't run a real browser backend.
type NoopBrowserService struct{}

func (NoopBrowserService) ProvisionSession(context.Context) (string, error) {
	return uuid.NewString(), nil
}
