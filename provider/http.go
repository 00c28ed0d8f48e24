package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tolelom/tmlight/rpc"
	"github.com/tolelom/tmlight/types"
)

// HTTPProvider is a Provider that speaks the rpc package's JSON-RPC 2.0
// envelope over net/http, optionally wrapped in mTLS — the same
// tls.Config the teacher's network.Node optionally wraps its
// listener/dialer in, applied here to an http.Transport instead of a raw
// net.Conn since the wire format is HTTP request/response rather than
// length-prefixed gossip framing.
type HTTPProvider struct {
	id        types.PeerID
	url       string
	authToken string
	client    *http.Client
	nextID    int64
}

// NewHTTPProvider creates an HTTPProvider for the peer reachable at url. If
// tlsCfg is non-nil the client dials with mTLS; authToken, if non-empty, is
// sent as a bearer token matching rpc.Server's auth check.
func NewHTTPProvider(id types.PeerID, url, authToken string, tlsCfg *tls.Config) *HTTPProvider {
	transport := &http.Transport{TLSClientConfig: tlsCfg}
	return &HTTPProvider{
		id:        id,
		url:       url,
		authToken: authToken,
		client:    &http.Client{Transport: transport, Timeout: 0}, // per-call timeout via context
	}
}

func (p *HTTPProvider) ID() types.PeerID { return p.id }

func (p *HTTPProvider) call(ctx context.Context, method string, params, result any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params for %s: %w", method, err)
	}
	req := rpc.Request{
		JSONRPC: "2.0",
		ID:      atomic.AddInt64(&p.nextID, 1),
		Method:  method,
		Params:  rawParams,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("peer %s: %s: %w", p.id, method, err)
	}
	defer resp.Body.Close()

	var envelope rpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("peer %s: decode response for %s: %w", p.id, method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("peer %s: %s: rpc error %d: %s", p.id, method, envelope.Error.Code, envelope.Error.Message)
	}
	if result == nil {
		return nil
	}
	resultBytes, err := json.Marshal(envelope.Result)
	if err != nil {
		return fmt.Errorf("peer %s: re-encode result for %s: %w", p.id, method, err)
	}
	if err := json.Unmarshal(resultBytes, result); err != nil {
		return fmt.Errorf("peer %s: decode result for %s: %w", p.id, method, err)
	}
	return nil
}

func (p *HTTPProvider) LightBlock(ctx context.Context, height types.Height) (*types.LightBlock, error) {
	var block types.LightBlock
	if err := p.call(ctx, "lightBlock", map[string]types.Height{"height": height}, &block); err != nil {
		return nil, err
	}
	block.Provider = p.id
	return &block, nil
}

func (p *HTTPProvider) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := p.call(ctx, "status", map[string]string{}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DialTimeout is a default request timeout for callers that do not set
// their own context deadline. Neither HTTPProvider nor PeerSet applies it.
const DialTimeout = 10 * time.Second
