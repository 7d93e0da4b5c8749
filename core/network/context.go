package network

import "context"

type noDialCtxKey struct{}
type useTransientCtxKey struct{}
type forceDirectDialCtxKey struct{}

// WithNoDial returns a context that instructs NewStream/DialPeer to use only
// an existing connection and never initiate a new dial.
func WithNoDial(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, noDialCtxKey{}, reason)
}

// NoDial reports whether ctx was constructed with WithNoDial.
func NoDial(ctx context.Context) (reason string, ok bool) {
	v, ok := ctx.Value(noDialCtxKey{}).(string)
	return v, ok
}

// WithUseTransient allows opening a stream or dialing over a relayed
// (resource-limited) connection for the named purpose, matching the
// teacher's `network.WithUseTransient` used by identify.
func WithUseTransient(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, useTransientCtxKey{}, reason)
}

// GetUseTransient reports whether ctx permits use of a transient connection.
func GetUseTransient(ctx context.Context) (reason string, ok bool) {
	v, ok := ctx.Value(useTransientCtxKey{}).(string)
	return v, ok
}

// WithForceDirectDial forces the swarm to skip relayed addresses when
// dialing under this context.
func WithForceDirectDial(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, forceDirectDialCtxKey{}, reason)
}

// GetForceDirectDial reports whether ctx forces a direct (non-relay) dial.
func GetForceDirectDial(ctx context.Context) (reason string, ok bool) {
	v, ok := ctx.Value(forceDirectDialCtxKey{}).(string)
	return v, ok
}
