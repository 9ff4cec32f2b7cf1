package link

import "context"

// Link is the contract shared by None, Command and WithRelease.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// ReleaseFunc closes a session that rides on the link, such as an MQTT
// connection, before the link itself goes down.
type ReleaseFunc func(ctx context.Context)

// Releasing runs its release hooks, in order, before taking the inner link
// down.
type Releasing struct {
	inner   Link
	release []ReleaseFunc
}

// WithRelease wraps inner so that every hook runs before inner.Disconnect.
func WithRelease(inner Link, hooks ...ReleaseFunc) *Releasing {
	return &Releasing{inner: inner, release: hooks}
}

// Connect brings the inner link up.
func (r *Releasing) Connect(ctx context.Context) error {
	return r.inner.Connect(ctx)
}

// Disconnect runs the release hooks, then takes the inner link down.
func (r *Releasing) Disconnect(ctx context.Context) error {
	for _, fn := range r.release {
		fn(ctx)
	}
	return r.inner.Disconnect(ctx)
}
