package config

import (
	"crypto/tls"

	"github.com/tolelom/tmlight/provider"
	"github.com/tolelom/tmlight/types"
)

// BuildPeerSet dials opts.Primary and every opts.Witnesses entry as
// HTTPProviders and assembles them into a provider.PeerSet. tlsCfg, when
// non-nil (from LoadTLSConfig), is applied to every connection.
func BuildPeerSet(opts *Options, tlsCfg *tls.Config) *provider.PeerSet {
	primary := provider.NewHTTPProvider(types.PeerID(opts.Primary.ID), opts.Primary.Addr, opts.RPCAuthToken, tlsCfg)
	witnesses := make([]provider.Provider, 0, len(opts.Witnesses))
	for _, w := range opts.Witnesses {
		witnesses = append(witnesses, provider.NewHTTPProvider(types.PeerID(w.ID), w.Addr, opts.RPCAuthToken, tlsCfg))
	}
	return provider.NewPeerSet(primary, witnesses...)
}
