package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tolelom/tmlight/evidence"
	"github.com/tolelom/tmlight/light"
	"github.com/tolelom/tmlight/types"
)

// Handler holds all dependencies needed to serve the light client's own
// RPC surface: what it currently trusts, on-demand verification, and
// recorded fork/misbehavior evidence.
type Handler struct {
	client   *light.Client
	evidence *evidence.Store
}

// NewHandler creates an RPC Handler.
func NewHandler(client *light.Client, ev *evidence.Store) *Handler {
	return &Handler{client: client, evidence: ev}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	ctx := context.Background()
	switch req.Method {
	case "latestTrusted":
		return h.latestTrusted(req)
	case "verifyToHeight":
		return h.verifyToHeight(ctx, req)
	case "verifyToHighest":
		return h.verifyToHighest(ctx, req)
	case "status":
		return h.status(req)
	case "getEvidence":
		return h.getEvidence(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) latestTrusted(req Request) Response {
	block := h.client.LatestTrusted()
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no trusted state yet")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) verifyToHeight(ctx context.Context, req Request) Response {
	var params struct {
		Height types.Height `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	block, err := h.client.VerifyToTarget(ctx, params.Height)
	return verifyResponse(req, block, err)
}

func (h *Handler) verifyToHighest(ctx context.Context, req Request) Response {
	block, err := h.client.VerifyToHighest(ctx)
	return verifyResponse(req, block, err)
}

// verifyResponse folds the common "return the block even though a fork
// error was also raised" shape shared by both verification methods.
func verifyResponse(req Request, block *types.LightBlock, err error) Response {
	if err != nil {
		var forkErr *light.ForkDetectedError
		if asForkErr(err, &forkErr) && block != nil {
			return okResponse(req.ID, map[string]any{
				"block": block,
				"fork":  forkErr.Report,
			})
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

func asForkErr(err error, target **light.ForkDetectedError) bool {
	if fe, ok := err.(*light.ForkDetectedError); ok {
		*target = fe
		return true
	}
	return false
}

func (h *Handler) status(req Request) Response {
	block := h.client.LatestTrusted()
	if block == nil {
		return okResponse(req.ID, map[string]any{"latest_height": 0})
	}
	return okResponse(req.ID, map[string]any{
		"latest_height": block.Height(),
		"latest_hash":   block.SignedHeader.Commit.BlockHash,
	})
}

func (h *Handler) getEvidence(req Request) Response {
	var params struct {
		Height types.Height `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	forks, err := h.evidence.ForksAtHeight(params.Height)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, forks)
}
