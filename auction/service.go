package auction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"proxyauction/cryptoutil"
	"proxyauction/metrics"
	"proxyauction/store"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// These type aliases keep the API of `package auction` free of types defined
// in `package store`.
type (
	Bidder       = store.Bidder
	Bid          = store.Bid
	ProxyCeiling = store.ProxyCeiling
)

// Service is the auction ledger as seen by the protocol layer. Every method is
// linearizable with respect to every other method.
type Service interface {
	Ping(ctx context.Context) error
	Register(ctx context.Context, label string, publicKey []byte) (*Bidder, error)
	RecordBid(ctx context.Context, bidderID string, amount int64, signature []byte) (*Bid, error)
	SetProxyCeiling(ctx context.Context, bidderID string, maxAmount int64) (*ProxyCeiling, error)
	CurrentWinner(ctx context.Context) (*Winner, error)
}

//
//
//

type MockService struct {
	PingFunc            func(ctx context.Context) error
	RegisterFunc        func(ctx context.Context, label string, publicKey []byte) (*Bidder, error)
	RecordBidFunc       func(ctx context.Context, bidderID string, amount int64, signature []byte) (*Bid, error)
	SetProxyCeilingFunc func(ctx context.Context, bidderID string, maxAmount int64) (*ProxyCeiling, error)
	CurrentWinnerFunc   func(ctx context.Context) (*Winner, error)
}

func NewMockServiceErr(err error) *MockService {
	return &MockService{
		PingFunc: func(ctx context.Context) error {
			return err
		},
		RegisterFunc: func(ctx context.Context, label string, publicKey []byte) (*Bidder, error) {
			return nil, err
		},
		RecordBidFunc: func(ctx context.Context, bidderID string, amount int64, signature []byte) (*Bid, error) {
			return nil, err
		},
		SetProxyCeilingFunc: func(ctx context.Context, bidderID string, maxAmount int64) (*ProxyCeiling, error) {
			return nil, err
		},
		CurrentWinnerFunc: func(ctx context.Context) (*Winner, error) {
			return nil, err
		},
	}
}

func (m *MockService) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}

func (m *MockService) Register(ctx context.Context, label string, publicKey []byte) (*Bidder, error) {
	return m.RegisterFunc(ctx, label, publicKey)
}

func (m *MockService) RecordBid(ctx context.Context, bidderID string, amount int64, signature []byte) (*Bid, error) {
	return m.RecordBidFunc(ctx, bidderID, amount, signature)
}

func (m *MockService) SetProxyCeiling(ctx context.Context, bidderID string, maxAmount int64) (*ProxyCeiling, error) {
	return m.SetProxyCeilingFunc(ctx, bidderID, maxAmount)
}

func (m *MockService) CurrentWinner(ctx context.Context) (*Winner, error) {
	return m.CurrentWinnerFunc(ctx)
}

//
//
//

type CoreService struct {
	store  store.Store
	logger log.Logger
}

var _ Service = (*CoreService)(nil)

func NewCoreService(s store.Store, logger log.Logger) *CoreService {
	return &CoreService{
		store:  s,
		logger: logger,
	}
}

func (s *CoreService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}

	return nil
}

func (s *CoreService) Register(ctx context.Context, label string, publicKey []byte) (_ *Bidder, err error) {
	defer func() {
		metrics.RegistrationsTotal.WithLabelValues(boolString(err == nil, "success", "error")).Inc()
	}()

	// A bidder bound to an unusable key could never place a bid.
	if _, err := cryptoutil.ParsePublicKey(publicKey); err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrInvalidRequest, err)
	}

	b := &Bidder{
		Label:     label,
		PublicKey: publicKey,
	}

	if err := s.store.InsertBidder(ctx, b); err != nil {
		return nil, fmt.Errorf("insert bidder: %w", err)
	}

	level.Info(s.logger).Log("msg", "bidder registered", "bidder_num", label, "bidder_id", b.ID)

	return b, nil
}

func (s *CoreService) RecordBid(ctx context.Context, bidderID string, amount int64, signature []byte) (_ *Bid, err error) {
	kind := "direct"

	defer func() {
		metrics.BidsSubmittedTotal.WithLabelValues(kind, boolString(err == nil, "success", "error")).Inc()
	}()

	if amount <= 0 {
		return nil, fmt.Errorf("%w: bid amount %d must be positive", ErrInvalidRequest, amount)
	}

	var bidder *Bidder
	{
		b, err := s.store.SelectBidder(ctx, bidderID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("bidder %q: %w", bidderID, ErrUnknownBidder)
		case err != nil:
			return nil, fmt.Errorf("select bidder: %w", err)
		}
		bidder = b
	}

	// SECURITY: the amount is only accepted with a signature from the key
	// bound to this bidder ID at registration. Keys never change, so checking
	// outside the store's lock doesn't open a race.
	{
		begin := time.Now()
		msg := cryptoutil.BidSignBytes(bidder.ID, strconv.FormatInt(amount, 10))
		ok := cryptoutil.Verify(bidder.PublicKey, msg, signature)
		metrics.OpWait("verify_signature", time.Since(begin))
		if !ok {
			level.Warn(s.logger).Log("msg", "bid rejected", "bidder_id", bidderID, "amount", amount, "err", ErrInvalidSignature)
			return nil, fmt.Errorf("bidder %q amount %d: %w", bidderID, amount, ErrInvalidSignature)
		}
	}

	switch c, err := s.store.SelectProxyCeiling(ctx, bidderID); {
	case err == nil && c.MaxAmount >= amount:
		kind = "proxy"
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("select proxy ceiling: %w", err)
	}

	bid := &Bid{
		BidderID:  bidderID,
		Amount:    amount,
		Signature: signature,
	}

	begin := time.Now()
	err = s.store.UpsertBid(ctx, bid)
	metrics.OpWait("store_upsert_bid", time.Since(begin))
	if err != nil {
		return nil, fmt.Errorf("record bid: %w", err)
	}

	level.Info(s.logger).Log("msg", "bid recorded", "kind", kind, "bidder_id", bidderID, "amount", amount)

	return bid, nil
}

func (s *CoreService) SetProxyCeiling(ctx context.Context, bidderID string, maxAmount int64) (_ *ProxyCeiling, err error) {
	defer func() {
		metrics.ProxyCeilingsSetTotal.WithLabelValues(boolString(err == nil, "success", "error")).Inc()
	}()

	if maxAmount <= 0 {
		return nil, fmt.Errorf("%w: max bid %d must be positive", ErrInvalidRequest, maxAmount)
	}

	c := &ProxyCeiling{
		BidderID:  bidderID,
		MaxAmount: maxAmount,
	}

	if err := s.store.UpsertProxyCeiling(ctx, c); err != nil {
		return nil, fmt.Errorf("set proxy ceiling: %w", err)
	}

	level.Info(s.logger).Log("msg", "proxy ceiling set", "bidder_id", bidderID, "max_bid", maxAmount)

	return c, nil
}

func (s *CoreService) CurrentWinner(ctx context.Context) (_ *Winner, err error) {
	defer func() {
		var result string
		switch {
		case err == nil:
			result = "success"
		case errors.Is(err, ErrNoBids):
			result = "no_bids"
		default:
			result = "error"
		}
		metrics.WinnerRequestsTotal.WithLabelValues(result).Inc()
	}()

	bids, err := s.store.ListBids(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}

	w := SelectWinner(bids)
	if w == nil {
		return nil, ErrNoBids
	}

	level.Info(s.logger).Log("msg", "winner computed", "bidder_id", w.BidderID, "amount", w.Amount, "bid_count", len(bids))

	return w, nil
}
