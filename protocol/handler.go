package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"proxyauction/auction"
	"proxyauction/metrics"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
)

// Handler interprets one decoded request against the auction service and
// produces exactly one response string. It never returns without a response,
// including when the service panics.
type Handler struct {
	service auction.Service
	logger  log.Logger
}

func NewHandler(service auction.Service, logger log.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// HandleBytes decodes a JSON request and handles it.
func (h *Handler) HandleBytes(ctx context.Context, b []byte) string {
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		metrics.RequestsTotal.WithLabelValues("undecodable", "error").Inc()
		return h.respondError(&req, fmt.Errorf("%w: decode request: %v", auction.ErrInvalidRequest, err))
	}

	return h.Handle(ctx, &req)
}

func (h *Handler) Handle(ctx context.Context, req *Request) (resp string) {
	if req == nil {
		req = &Request{}
	}

	defer func() {
		if v := recover(); v != nil {
			resp = h.respondError(req, fmt.Errorf("panic: %v", v))
		}
		metrics.RequestsTotal.WithLabelValues(actionLabel(req.Action), resultLabel(resp)).Inc()
	}()

	switch req.Action {
	case ActionRegister:
		return h.handleRegister(ctx, req)
	case ActionBid:
		return h.handleBid(ctx, req)
	case ActionProxyBid:
		return h.handleProxyBid(ctx, req)
	case ActionWinner:
		return h.handleWinner(ctx, req)
	default:
		level.Debug(h.logger).Log("msg", "invalid action", "action", req.Action)
		return RespInvalidAction
	}
}

//
//
//

func (h *Handler) handleRegister(ctx context.Context, req *Request) string {
	var merr multiError
	merr.addIf(req.BidderNum == "", ErrNoBidderNum)
	merr.addIf(req.PublicKey == "", ErrNoPublicKey)
	if err := merr.yield(); err != nil {
		return h.respondError(req, fmt.Errorf("%w: %v", auction.ErrInvalidRequest, err))
	}

	b, err := h.service.Register(ctx, req.BidderNum, []byte(req.PublicKey))
	if err != nil {
		return h.respondError(req, fmt.Errorf("register: %w", err))
	}

	return FormatRegisterResponse(b.ID)
}

func (h *Handler) handleBid(ctx context.Context, req *Request) string {
	var (
		merr      multiError
		amount    int64
		signature []byte
	)
	merr.addIf(req.BidderID == "", ErrNoBidderID)
	merr.addIf(req.BidAmount == "", ErrNoBidAmount)
	merr.addIf(req.Signature == "", ErrNoSignature)
	if req.BidAmount != "" {
		n, err := parseAmount("bid_amount", req.BidAmount)
		merr.addIf(err != nil, err)
		amount = n
	}
	if req.Signature != "" {
		sig, err := parseSignature(req.Signature)
		merr.addIf(err != nil, err)
		signature = sig
	}
	if err := merr.yield(); err != nil {
		return h.respondError(req, fmt.Errorf("%w: %v", auction.ErrInvalidRequest, err))
	}

	_, err := h.service.RecordBid(ctx, req.BidderID, amount, signature)
	switch {
	case err == nil:
		return RespBidSuccess
	case errors.Is(err, auction.ErrUnknownBidder):
		h.logRejected(req, err)
		return RespInvalidBidder
	case errors.Is(err, auction.ErrInvalidSignature):
		h.logRejected(req, err)
		return RespInvalidSignature
	default:
		return h.respondError(req, fmt.Errorf("record bid: %w", err))
	}
}

func (h *Handler) handleProxyBid(ctx context.Context, req *Request) string {
	var (
		merr      multiError
		maxAmount int64
	)
	merr.addIf(req.BidderID == "", ErrNoBidderID)
	merr.addIf(req.MaxBid == "", ErrNoMaxBid)
	if req.MaxBid != "" {
		n, err := parseAmount("max_bid", req.MaxBid)
		merr.addIf(err != nil, err)
		maxAmount = n
	}
	if err := merr.yield(); err != nil {
		return h.respondError(req, fmt.Errorf("%w: %v", auction.ErrInvalidRequest, err))
	}

	_, err := h.service.SetProxyCeiling(ctx, req.BidderID, maxAmount)
	switch {
	case err == nil:
		return RespProxySuccess
	case errors.Is(err, auction.ErrUnknownBidder):
		h.logRejected(req, err)
		return RespUnknownBidder
	default:
		return h.respondError(req, fmt.Errorf("set proxy ceiling: %w", err))
	}
}

func (h *Handler) handleWinner(ctx context.Context, req *Request) string {
	w, err := h.service.CurrentWinner(ctx)
	switch {
	case err == nil:
		return FormatWinnerResponse(w)
	case errors.Is(err, auction.ErrNoBids):
		return RespNoBids
	default:
		return h.respondError(req, fmt.Errorf("current winner: %w", err))
	}
}

//
//
//

func (h *Handler) respondError(req *Request, err error) string {
	if errors.Is(err, auction.ErrInvalidRequest) {
		level.Debug(h.logger).Log("action", req.Action, "bidder_id", req.BidderID, "err", err)
	} else {
		level.Error(h.logger).Log("action", req.Action, "bidder_id", req.BidderID, "err", err)
	}
	return FormatErrorResponse(err)
}

func (h *Handler) logRejected(req *Request, err error) {
	level.Info(h.logger).Log("msg", "request rejected", "action", req.Action, "bidder_id", req.BidderID, "err", err)
}

func actionLabel(action string) string {
	switch action {
	case ActionRegister, ActionBid, ActionProxyBid, ActionWinner:
		return action
	default:
		return "invalid"
	}
}

func resultLabel(resp string) string {
	switch {
	case strings.HasPrefix(resp, RespErrorPrefix):
		return "error"
	case resp == RespInvalidAction,
		resp == RespInvalidBidder,
		resp == RespInvalidSignature,
		resp == RespUnknownBidder:
		return "rejected"
	default:
		return "success"
	}
}

//
//
//

type multiError struct {
	merr *multierror.Error
}

func (m *multiError) addIf(b bool, err error) {
	if !b {
		return
	}

	if m.merr == nil {
		m.merr = &multierror.Error{ErrorFormat: joinErrorStrings}
	}

	m.merr = multierror.Append(m.merr, err)
}

func (m *multiError) yield() error {
	if m.merr == nil {
		return nil
	}

	return m.merr.ErrorOrNil()
}

func joinErrorStrings(errs []error) string {
	strs := make([]string, len(errs))
	for i := range errs {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "; ")
}
