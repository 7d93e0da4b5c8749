package identify

// config collects the options NewIDService accepts.
type config struct {
	userAgent               string
	protocolVersion         string
	disableSignedPeerRecord bool
}

// Option configures an idService at construction, per the teacher's own
// identify.Option shape.
type Option func(*config)

// WithUserAgent overrides defaultUserAgent in the Identify message we send.
func WithUserAgent(ua string) Option {
	return func(c *config) { c.userAgent = ua }
}

// WithProtocolVersion overrides DefaultProtocolVersion in the Identify
// message we send.
func WithProtocolVersion(pv string) Option {
	return func(c *config) { c.protocolVersion = pv }
}

// DisableSignedPeerRecord stops the service from attaching or consuming
// signed PeerRecord envelopes, falling back to the unsigned listen-addr
// list on both send and receive.
func DisableSignedPeerRecord() Option {
	return func(c *config) { c.disableSignedPeerRecord = true }
}
