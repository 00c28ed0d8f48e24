// Package config holds the light client's operator-facing configuration:
// trust parameters, peer addresses, storage location, and the local RPC
// surface.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tolelom/tmlight/types"
)

// TLSConfig holds paths to the PEM files needed for mTLS when dialing
// peers. When nil or all paths empty, the provider falls back to plain
// HTTP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a full node the light client can query.
type SeedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"` // base URL, e.g. "https://node0.example:26657"
}

// Options holds all light client configuration.
type Options struct {
	ChainID        string             `json:"chain_id"`
	TrustThreshold types.TrustThreshold `json:"trust_threshold"`
	TrustingPeriod time.Duration      `json:"trusting_period"`
	ClockDrift     time.Duration      `json:"clock_drift"`
	RequestTimeout time.Duration      `json:"request_timeout"`
	Primary        SeedPeer           `json:"primary"`
	Witnesses      []SeedPeer         `json:"witnesses"`
	DataDir        string             `json:"data_dir"`
	RPCAddr        string             `json:"rpc_addr"`
	RPCAuthToken   string             `json:"rpc_auth_token,omitempty"`
	TLS            *TLSConfig         `json:"tls,omitempty"`
}

// DefaultOptions returns conservative defaults: 1/3 trust threshold, a
// two-week trusting period and 10-second clock drift allowance, matching
// the values most Tendermint-style light clients ship with.
func DefaultOptions() *Options {
	return &Options{
		TrustThreshold: types.DefaultTrustThreshold,
		TrustingPeriod: 14 * 24 * time.Hour,
		ClockDrift:     10 * time.Second,
		RequestTimeout: 5 * time.Second,
		DataDir:        "./data",
		RPCAddr:        ":26658",
	}
}

// Load reads a JSON config file from path, applying DefaultOptions as a
// base, and validates required fields.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	opts := DefaultOptions()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return opts, nil
}

// Validate checks that all required fields are present and well-formed.
func (o *Options) Validate() error {
	if o.ChainID == "" {
		return fmt.Errorf("chain_id must not be empty")
	}
	if o.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if err := o.TrustThreshold.Validate(); err != nil {
		return fmt.Errorf("trust_threshold: %w", err)
	}
	if o.TrustingPeriod <= 0 {
		return fmt.Errorf("trusting_period must be > 0")
	}
	if o.ClockDrift < 0 {
		return fmt.Errorf("clock_drift must be >= 0")
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if o.Primary.Addr == "" {
		return fmt.Errorf("primary.addr must not be empty")
	}
	if len(o.Witnesses) == 0 {
		return fmt.Errorf("at least one witness is required for fork detection")
	}
	if o.TLS != nil {
		t := o.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes opts to path as formatted JSON.
func Save(opts *Options, path string) error {
	data, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Clock is the light client's view of the current time, injectable for
// deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock, backed by time.Now.
var SystemClock Clock = systemClock{}
