// Package status keeps a single live server-status message in a channel,
// replacing it on every refresh.
package status

import (
	"context"

	"github.com/nextlevelbuilder/hookrelay/internal/sysstat"
)

// Composer produces the text of one status message.
type Composer interface {
	Compose(ctx context.Context) (string, error)
}

// ComposerFunc adapts a function to Composer.
type ComposerFunc func(ctx context.Context) (string, error)

func (f ComposerFunc) Compose(ctx context.Context) (string, error) { return f(ctx) }

// HostComposer renders a host snapshot.
type HostComposer struct {
	Sampler *sysstat.Sampler
}

func (h HostComposer) Compose(ctx context.Context) (string, error) {
	s := h.Sampler
	if s == nil {
		s = &sysstat.Sampler{}
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return sysstat.Format(snap), nil
}
