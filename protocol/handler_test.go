package protocol_test

import (
	"context"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"proxyauction/auction"
	"proxyauction/cryptoutil"
	"proxyauction/protocol"
	"proxyauction/store/memstore"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
)

type testBidder struct {
	id  string
	key *rsa.PrivateKey
}

func newHandler(t *testing.T) *protocol.Handler {
	t.Helper()
	var (
		logger = log.NewNopLogger()
		svc    = auction.NewCoreService(memstore.NewStore(), logger)
	)
	return protocol.NewHandler(svc, logger)
}

func registerBidder(t *testing.T, h *protocol.Handler, label string) *testBidder {
	t.Helper()

	key, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	resp := h.Handle(context.Background(), &protocol.Request{
		Action:    protocol.ActionRegister,
		BidderNum: label,
		PublicKey: string(pub),
	})

	id, err := protocol.ParseRegisterResponse(resp)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	return &testBidder{id: id, key: key}
}

func (b *testBidder) bid(t *testing.T, amount int64) *protocol.Request {
	t.Helper()

	a := strconv.FormatInt(amount, 10)
	sig, err := cryptoutil.SignWithKey(b.key, cryptoutil.BidSignBytes(b.id, a))
	if err != nil {
		t.Fatal(err)
	}

	return &protocol.Request{
		Action:    protocol.ActionBid,
		BidderID:  b.id,
		BidAmount: a,
		Signature: hex.EncodeToString(sig),
	}
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()

	var (
		ctx = context.Background()
		h   = newHandler(t)
		a   = registerBidder(t, h, "1")
		b   = registerBidder(t, h, "2")
	)

	if want, have := "100", a.id; want != have {
		t.Errorf("first id: want %s, have %s", want, have)
	}

	for _, tc := range []struct {
		req  *protocol.Request
		want string
	}{
		{protocol.NewProxyBidRequest(a.id, 600), protocol.RespProxySuccess},
		{protocol.NewProxyBidRequest(b.id, 1000), protocol.RespProxySuccess},
		{a.bid(t, 300), protocol.RespBidSuccess},
		{b.bid(t, 700), protocol.RespBidSuccess},
		{protocol.NewWinnerRequest(), "BID_WINNER " + b.id + " with Amount 700"},
	} {
		if want, have := tc.want, h.Handle(ctx, tc.req); want != have {
			t.Fatalf("%s: want %q, have %q", tc.req.Action, want, have)
		}
	}
}

func TestBidRejections(t *testing.T) {
	t.Parallel()

	var (
		ctx = context.Background()
		h   = newHandler(t)
		a   = registerBidder(t, h, "1")
		b   = registerBidder(t, h, "2")
	)

	if want, have := protocol.RespBidSuccess, h.Handle(ctx, a.bid(t, 300)); want != have {
		t.Fatalf("want %q, have %q", want, have)
	}

	t.Run("unknown bidder", func(t *testing.T) {
		req := a.bid(t, 500)
		req.BidderID = "999"
		if want, have := protocol.RespInvalidBidder, h.Handle(ctx, req); want != have {
			t.Fatalf("want %q, have %q", want, have)
		}
	})

	t.Run("tampered signature", func(t *testing.T) {
		req := b.bid(t, 900)
		sig, _ := hex.DecodeString(req.Signature)
		sig[0] ^= 0xff
		req.Signature = hex.EncodeToString(sig)
		if want, have := protocol.RespInvalidSignature, h.Handle(ctx, req); want != have {
			t.Fatalf("want %q, have %q", want, have)
		}
	})

	t.Run("signed by another bidder", func(t *testing.T) {
		req := a.bid(t, 900)
		req.BidderID = b.id
		if want, have := protocol.RespInvalidSignature, h.Handle(ctx, req); want != have {
			t.Fatalf("want %q, have %q", want, have)
		}
	})

	t.Run("proxy bid for unknown bidder", func(t *testing.T) {
		req := &protocol.Request{Action: protocol.ActionProxyBid, BidderID: "999", MaxBid: "1000"}
		if want, have := protocol.RespUnknownBidder, h.Handle(ctx, req); want != have {
			t.Fatalf("want %q, have %q", want, have)
		}
	})

	// None of the rejected bids may have displaced the accepted one.
	want := "BID_WINNER " + a.id + " with Amount 300"
	if have := h.Handle(ctx, &protocol.Request{Action: protocol.ActionWinner}); want != have {
		t.Fatalf("want %q, have %q", want, have)
	}
}

func TestMalformedRequests(t *testing.T) {
	t.Parallel()

	var (
		ctx = context.Background()
		h   = newHandler(t)
		a   = registerBidder(t, h, "1")
	)

	for name, tc := range map[string]struct {
		req     *protocol.Request
		want    string
		errfrag []string
	}{
		"empty action": {
			req:  &protocol.Request{},
			want: protocol.RespInvalidAction,
		},
		"unknown action": {
			req:  &protocol.Request{Action: "WITHDRAW"},
			want: protocol.RespInvalidAction,
		},
		"register without fields": {
			req:     &protocol.Request{Action: protocol.ActionRegister},
			errfrag: []string{"no bidder_num", "no public_key"},
		},
		"register with bad key": {
			req:     &protocol.Request{Action: protocol.ActionRegister, BidderNum: "1", PublicKey: "not a key"},
			errfrag: []string{"invalid request", "public key"},
		},
		"bid without fields": {
			req:     &protocol.Request{Action: protocol.ActionBid},
			errfrag: []string{"no bidder_id", "no bid_amount", "no signature"},
		},
		"bid amount not an integer": {
			req:     &protocol.Request{Action: protocol.ActionBid, BidderID: a.id, BidAmount: "12.5", Signature: "00"},
			errfrag: []string{"bid_amount", "not an integer"},
		},
		"bid amount not canonical": {
			req:     &protocol.Request{Action: protocol.ActionBid, BidderID: a.id, BidAmount: "0300", Signature: "00"},
			errfrag: []string{"canonical"},
		},
		"bid amount negative": {
			req:     &protocol.Request{Action: protocol.ActionBid, BidderID: a.id, BidAmount: "-5", Signature: "00"},
			errfrag: []string{"must be positive"},
		},
		"signature not hex": {
			req:     &protocol.Request{Action: protocol.ActionBid, BidderID: a.id, BidAmount: "300", Signature: "zz"},
			errfrag: []string{"not hex"},
		},
		"proxy bid without max": {
			req:     &protocol.Request{Action: protocol.ActionProxyBid, BidderID: a.id},
			errfrag: []string{"no max_bid"},
		},
		"proxy bid zero max": {
			req:     &protocol.Request{Action: protocol.ActionProxyBid, BidderID: a.id, MaxBid: "0"},
			errfrag: []string{"must be positive"},
		},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			have := h.Handle(ctx, tc.req)
			if tc.want != "" {
				if tc.want != have {
					t.Fatalf("want %q, have %q", tc.want, have)
				}
				return
			}
			if !strings.HasPrefix(have, protocol.RespErrorPrefix) {
				t.Fatalf("want error response, have %q", have)
			}
			for _, frag := range tc.errfrag {
				if !strings.Contains(have, frag) {
					t.Errorf("response %q doesn't contain %q", have, frag)
				}
			}
		})
	}

	if want, have := protocol.RespNoBids, h.Handle(ctx, &protocol.Request{Action: protocol.ActionWinner}); want != have {
		t.Fatalf("ledger changed by malformed requests: want %q, have %q", want, have)
	}
}

func TestHandleBytes(t *testing.T) {
	t.Parallel()

	var (
		ctx = context.Background()
		h   = newHandler(t)
		a   = registerBidder(t, h, "1")
	)

	body, err := json.Marshal(a.bid(t, 450))
	if err != nil {
		t.Fatal(err)
	}

	if want, have := protocol.RespBidSuccess, h.HandleBytes(ctx, body); want != have {
		t.Fatalf("want %q, have %q", want, have)
	}

	for _, b := range []string{``, `{`, `[]`, `{"action": 1}`} {
		if have := h.HandleBytes(ctx, []byte(b)); !strings.HasPrefix(have, protocol.RespErrorPrefix) {
			t.Errorf("%q: want error response, have %q", b, have)
		}
	}
}

func TestPanicRecovery(t *testing.T) {
	t.Parallel()

	svc := auction.NewMockServiceErr(nil)
	svc.CurrentWinnerFunc = func(ctx context.Context) (*auction.Winner, error) {
		panic("boom")
	}

	h := protocol.NewHandler(svc, log.NewNopLogger())

	if want, have := "ERROR: panic: boom", h.Handle(context.Background(), &protocol.Request{Action: protocol.ActionWinner}); want != have {
		t.Fatalf("want %q, have %q", want, have)
	}
}

func TestNilRequest(t *testing.T) {
	t.Parallel()

	if want, have := protocol.RespInvalidAction, newHandler(t).Handle(context.Background(), nil); want != have {
		t.Fatalf("want %q, have %q", want, have)
	}
}

func TestServiceError(t *testing.T) {
	t.Parallel()

	h := protocol.NewHandler(auction.NewMockServiceErr(errors.New("disk on fire")), log.NewNopLogger())

	have := h.Handle(context.Background(), &protocol.Request{Action: protocol.ActionProxyBid, BidderID: "100", MaxBid: "10"})
	if want := "ERROR: set proxy ceiling: disk on fire"; want != have {
		t.Fatalf("want %q, have %q", want, have)
	}
}

func TestParseWinnerResponse(t *testing.T) {
	t.Parallel()

	w := &auction.Winner{BidderID: "123", Amount: 4567}
	have, err := protocol.ParseWinnerResponse(protocol.FormatWinnerResponse(w))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(w, have); diff != "" {
		t.Fatalf("mismatch: %s", diff)
	}

	if _, err := protocol.ParseWinnerResponse(protocol.RespNoBids); !errors.Is(err, auction.ErrNoBids) {
		t.Fatalf("want %v, have %v", auction.ErrNoBids, err)
	}

	for _, resp := range []string{"", "BID_SUCCESS", "BID_WINNER x", protocol.RespErrorPrefix + "oops"} {
		if _, err := protocol.ParseWinnerResponse(resp); !errors.Is(err, protocol.ErrUnexpectedResponse) {
			t.Errorf("%q: want %v, have %v", resp, protocol.ErrUnexpectedResponse, err)
		}
	}

	if _, err := protocol.ParseRegisterResponse("INVALID_ACTION"); !errors.Is(err, protocol.ErrUnexpectedResponse) {
		t.Errorf("want %v, have %v", protocol.ErrUnexpectedResponse, err)
	}
}
