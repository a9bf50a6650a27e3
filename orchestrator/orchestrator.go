package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"proxyauction/agent"
	"proxyauction/auction"
	"proxyauction/client"
	"proxyauction/protocol"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"
)

const (
	MinCeiling  = 500
	MaxCeiling  = 10000
	StartingBid = 100

	DefaultMaxRounds = 1000
)

// ErrNoBidders is returned when not a single agent could be registered.
var ErrNoBidders = errors.New("no bidders registered")

// Transport is how the orchestrator reaches the auction server.
type Transport interface {
	Register(ctx context.Context, label string, publicKey []byte) (string, error)
	Bid(ctx context.Context, bidderID string, amount int64, signature []byte) (string, error)
	ProxyBid(ctx context.Context, bidderID string, maxAmount int64) (string, error)
	Winner(ctx context.Context) (*auction.Winner, error)
}

var _ Transport = (*client.Client)(nil)

type Config struct {
	Bidders    int
	MinCeiling int64
	MaxCeiling int64

	// MaxRounds bounds the bidding loop. Zero means DefaultMaxRounds.
	MaxRounds int

	Rand   agent.RandSource
	Logger log.Logger
}

func (c *Config) validate() error {
	if c.Bidders <= 0 {
		return fmt.Errorf("bidders must be positive, have %d", c.Bidders)
	}
	if c.MinCeiling == 0 && c.MaxCeiling == 0 {
		c.MinCeiling, c.MaxCeiling = MinCeiling, MaxCeiling
	}
	if c.MinCeiling <= 0 || c.MaxCeiling < c.MinCeiling {
		return fmt.Errorf("invalid ceiling range [%d, %d]", c.MinCeiling, c.MaxCeiling)
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.Rand == nil {
		c.Rand = agent.NewRandSource(0)
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	return nil
}

// Result summarizes a completed auction. Winner is nil if no bid was
// accepted.
type Result struct {
	Winner   *auction.Winner
	Agents   []*agent.Agent
	Rounds   int
	Accepted int
	Rejected int
}

type Orchestrator struct {
	transport Transport
	cfg       Config
}

func NewOrchestrator(t Transport, cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		transport: t,
		cfg:       cfg,
	}, nil
}

// Run registers the agents, records their ceilings, runs bidding rounds until
// a full round accepts no bid, and asks the server for the winner.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	agents, err := o.register(ctx)
	if err != nil {
		return nil, err
	}

	if err := o.setCeilings(ctx, agents); err != nil {
		return nil, err
	}

	res, err := o.bid(ctx, agents)
	if err != nil {
		return nil, err
	}

	switch w, err := o.transport.Winner(ctx); {
	case err == nil:
		res.Winner = w
		level.Info(o.cfg.Logger).Log("msg", "auction closed", "winner", w.BidderID, "amount", w.Amount, "rounds", res.Rounds)
	case errors.Is(err, auction.ErrNoBids):
		level.Info(o.cfg.Logger).Log("msg", "auction closed without bids", "rounds", res.Rounds)
	default:
		return nil, fmt.Errorf("winner: %w", err)
	}

	return res, nil
}

// register generates keys and registers every agent concurrently. Agents
// that fail are logged and left out; the rest keep their label order.
func (o *Orchestrator) register(ctx context.Context) ([]*agent.Agent, error) {
	var (
		slots = make([]*agent.Agent, o.cfg.Bidders)
		g     errgroup.Group
	)

	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range slots {
		i := i
		g.Go(func() error {
			label := strconv.Itoa(i + 1)

			a, err := agent.NewAgent(label)
			if err != nil {
				level.Error(o.cfg.Logger).Log("msg", "key generation failed", "bidder_num", label, "err", err)
				return nil
			}

			id, err := o.transport.Register(ctx, label, a.PublicKey)
			if err != nil {
				level.Warn(o.cfg.Logger).Log("msg", "registration failed", "bidder_num", label, "err", err)
				return nil
			}
			a.ID = id

			level.Info(o.cfg.Logger).Log("msg", "bidder registered", "bidder_num", label, "bidder_id", id)

			slots[i] = a
			return nil
		})
	}

	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agents := make([]*agent.Agent, 0, len(slots))
	for _, a := range slots {
		if a != nil {
			agents = append(agents, a)
		}
	}

	if len(agents) == 0 {
		return nil, ErrNoBidders
	}

	return agents, nil
}

// setCeilings draws a private ceiling for each agent and records it with the
// server. The server only uses ceilings for bookkeeping, so a failure here is
// logged and bidding goes ahead.
func (o *Orchestrator) setCeilings(ctx context.Context, agents []*agent.Agent) error {
	span := int(o.cfg.MaxCeiling - o.cfg.MinCeiling + 1)
	for _, a := range agents {
		a.Ceiling = o.cfg.MinCeiling + int64(o.cfg.Rand.Intn(span))

		resp, err := o.transport.ProxyBid(ctx, a.ID, a.Ceiling)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			level.Warn(o.cfg.Logger).Log("msg", "proxy bid failed", "bidder_id", a.ID, "err", err)
		case resp != protocol.RespProxySuccess:
			level.Warn(o.cfg.Logger).Log("msg", "proxy bid rejected", "bidder_id", a.ID, "resp", resp)
		default:
			level.Debug(o.cfg.Logger).Log("msg", "proxy bid set", "bidder_id", a.ID, "max_bid", a.Ceiling)
		}
	}
	return nil
}

func (o *Orchestrator) bid(ctx context.Context, agents []*agent.Agent) (*Result, error) {
	var (
		res     = &Result{Agents: agents}
		highest = int64(StartingBid)
		leader  string
		order   = make([]int, len(agents))
	)

	for i := range order {
		order[i] = i
	}

	for round := 1; round <= o.cfg.MaxRounds; round++ {
		shuffle(o.cfg.Rand, order)

		accepted := 0
		for _, i := range order {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			a := agents[i]
			if a.ID == leader {
				continue
			}

			amount, ok := a.NextBid(o.cfg.Rand, highest)
			if !ok {
				continue
			}

			sig, err := a.SignBid(amount)
			if err != nil {
				level.Error(o.cfg.Logger).Log("msg", "sign bid failed", "bidder_id", a.ID, "err", err)
				res.Rejected++
				continue
			}

			resp, err := o.transport.Bid(ctx, a.ID, amount, sig)
			switch {
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case err != nil:
				level.Warn(o.cfg.Logger).Log("msg", "bid failed", "bidder_id", a.ID, "amount", amount, "err", err)
				res.Rejected++
			case resp != protocol.RespBidSuccess:
				level.Warn(o.cfg.Logger).Log("msg", "bid rejected", "bidder_id", a.ID, "amount", amount, "resp", resp)
				res.Rejected++
			default:
				level.Info(o.cfg.Logger).Log("msg", "bid accepted", "round", round, "bidder_id", a.ID, "amount", amount)
				highest, leader = amount, a.ID
				accepted++
			}
		}

		res.Rounds = round
		res.Accepted += accepted

		if accepted == 0 {
			break
		}
	}

	return res, nil
}

func shuffle(rnd agent.RandSource, s []int) {
	for i := len(s) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
