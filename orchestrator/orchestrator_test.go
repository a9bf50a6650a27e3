package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"proxyauction/agent"
	"proxyauction/auction"
	"proxyauction/client"
	"proxyauction/orchestrator"
	"proxyauction/protocol"
	"proxyauction/store/memstore"

	"github.com/go-kit/log"
)

func newLocalTransport() *client.Client {
	logger := log.NewNopLogger()
	return client.NewLocalClient(protocol.NewHandler(auction.NewCoreService(memstore.NewStore(), logger), logger))
}

// rejectingTransport refuses every bid from one bidder, the way the server
// does for a bad signature.
type rejectingTransport struct {
	orchestrator.Transport
	bidderID string
}

func (t *rejectingTransport) Bid(ctx context.Context, bidderID string, amount int64, signature []byte) (string, error) {
	if bidderID == t.bidderID {
		return protocol.RespInvalidSignature, nil
	}
	return t.Transport.Bid(ctx, bidderID, amount, signature)
}

type failingRegisterTransport struct {
	orchestrator.Transport
}

func (failingRegisterTransport) Register(ctx context.Context, label string, publicKey []byte) (string, error) {
	return "", errors.New("connection refused")
}

func run(t *testing.T, tr orchestrator.Transport, cfg orchestrator.Config) *orchestrator.Result {
	t.Helper()

	o, err := orchestrator.NewOrchestrator(tr, cfg)
	if err != nil {
		t.Fatal(err)
	}

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	return res
}

// checkQuiescent verifies that bidding stopped only because nobody but the
// winner could advance.
func checkQuiescent(t *testing.T, res *orchestrator.Result) {
	t.Helper()

	if res.Winner == nil {
		t.Fatal("no winner")
	}

	var found bool
	for _, a := range res.Agents {
		if a.ID == res.Winner.BidderID {
			found = true
			if a.Ceiling < res.Winner.Amount {
				t.Errorf("winner %s bid %d above its ceiling %d", a.ID, res.Winner.Amount, a.Ceiling)
			}
			continue
		}
		if _, ok := a.NextBid(agent.NewRandSource(1), res.Winner.Amount); ok {
			t.Errorf("bidder %s (ceiling %d) could still beat %d", a.ID, a.Ceiling, res.Winner.Amount)
		}
	}
	if !found {
		t.Errorf("winner %s isn't one of the agents", res.Winner.BidderID)
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	for _, seed := range []int64{1, 2, 3} {
		res := run(t, newLocalTransport(), orchestrator.Config{
			Bidders: 5,
			Rand:    agent.NewRandSource(seed),
		})

		if want, have := 5, len(res.Agents); want != have {
			t.Fatalf("seed %d: agents: want %d, have %d", seed, want, have)
		}
		for _, a := range res.Agents {
			if a.Ceiling < orchestrator.MinCeiling || a.Ceiling > orchestrator.MaxCeiling {
				t.Errorf("seed %d: bidder %s ceiling %d out of range", seed, a.ID, a.Ceiling)
			}
		}
		if res.Rejected != 0 {
			t.Errorf("seed %d: rejected %d bids", seed, res.Rejected)
		}
		if res.Accepted == 0 {
			t.Errorf("seed %d: no bids accepted", seed)
		}

		checkQuiescent(t, res)
	}
}

func TestRunFixedCeilings(t *testing.T) {
	t.Parallel()

	res := run(t, newLocalTransport(), orchestrator.Config{
		Bidders:    3,
		MinCeiling: 800,
		MaxCeiling: 800,
		Rand:       agent.NewRandSource(7),
	})

	// Every agent caps at 800, so whoever gets there first holds it.
	if want, have := int64(800), res.Winner.Amount; want != have {
		t.Fatalf("winning amount: want %d, have %d", want, have)
	}

	checkQuiescent(t, res)
}

func TestRunRejectedBidder(t *testing.T) {
	t.Parallel()

	var (
		local = newLocalTransport()
		tr    = &rejectingTransport{Transport: local, bidderID: "100"}
		// High fixed ceilings guarantee every agent gets a turn in the
		// first round.
		res = run(t, tr, orchestrator.Config{
			Bidders:    3,
			MinCeiling: 5000,
			MaxCeiling: 5000,
			Rand:       agent.NewRandSource(11),
		})
	)

	if res.Rejected == 0 {
		t.Fatal("want rejected bids, have none")
	}

	if res.Winner != nil && res.Winner.BidderID == "100" {
		t.Fatal("rejected bidder won")
	}
}

func TestRunMaxRounds(t *testing.T) {
	t.Parallel()

	res := run(t, newLocalTransport(), orchestrator.Config{
		Bidders:   4,
		MaxRounds: 1,
		Rand:      agent.NewRandSource(5),
	})

	if want, have := 1, res.Rounds; want != have {
		t.Fatalf("rounds: want %d, have %d", want, have)
	}
}

func TestRunNoBidders(t *testing.T) {
	t.Parallel()

	o, err := orchestrator.NewOrchestrator(failingRegisterTransport{newLocalTransport()}, orchestrator.Config{Bidders: 2})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := o.Run(context.Background()); !errors.Is(err, orchestrator.ErrNoBidders) {
		t.Fatalf("want %v, have %v", orchestrator.ErrNoBidders, err)
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	o, err := orchestrator.NewOrchestrator(newLocalTransport(), orchestrator.Config{Bidders: 2})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want %v, have %v", context.Canceled, err)
	}
}

func TestNewOrchestratorInvalidConfig(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]orchestrator.Config{
		"no bidders":       {},
		"negative bidders": {Bidders: -1},
		"inverted range":   {Bidders: 1, MinCeiling: 900, MaxCeiling: 600},
		"negative minimum": {Bidders: 1, MinCeiling: -5, MaxCeiling: 600},
	} {
		if _, err := orchestrator.NewOrchestrator(newLocalTransport(), cfg); err == nil {
			t.Errorf("%s: want error, have none", name)
		}
	}
}
