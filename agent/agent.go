package agent

import (
	"crypto/rsa"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"proxyauction/cryptoutil"
)

// Proxy bids advance by a random increment in [MinIncrement, MaxIncrement].
const (
	MinIncrement = 100
	MaxIncrement = 500
)

// RandSource provides random numbers to agents and the orchestrator. Tests
// inject deterministic sources.
type RandSource interface {
	// Intn returns a random integer in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// NewRandSource returns a math/rand source that is safe for concurrent use.
// A seed of 0 means seed from the clock.
func NewRandSource(seed int64) RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

type lockedRand struct {
	mtx sync.Mutex
	r   *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.r.Intn(n)
}

// NextBid computes the amount an agent with the given ceiling should bid
// against currentHighest. It returns false when the agent can't advance, which
// is always the case once currentHighest >= ceiling. Otherwise the bid is
// strictly greater than currentHighest and never exceeds ceiling.
func NextBid(rnd RandSource, currentHighest, ceiling int64) (int64, bool) {
	if currentHighest >= ceiling {
		return 0, false
	}

	increment := int64(MinIncrement + rnd.Intn(MaxIncrement-MinIncrement+1))

	// Compared before adding so amounts near MaxInt64 can't wrap.
	if increment >= ceiling-currentHighest {
		return ceiling, true
	}

	return currentHighest + increment, true
}

//
//
//

// Agent is a bidder as the client sees it. ID is empty until the agent has
// been registered.
type Agent struct {
	ID         string
	Label      string
	PrivateKey *rsa.PrivateKey
	PublicKey  []byte // PEM
	Ceiling    int64
}

// NewAgent generates a fresh key pair for a bidder.
func NewAgent(label string) (*Agent, error) {
	key, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", label, err)
	}

	return &Agent{
		Label:      label,
		PrivateKey: key,
		PublicKey:  pub,
	}, nil
}

// SignBid signs amount on behalf of the registered agent.
func (a *Agent) SignBid(amount int64) ([]byte, error) {
	if a.ID == "" {
		return nil, fmt.Errorf("agent %s: not registered", a.Label)
	}

	return cryptoutil.SignWithKey(a.PrivateKey, cryptoutil.BidSignBytes(a.ID, strconv.FormatInt(amount, 10)))
}

// NextBid is NextBid against the agent's own ceiling.
func (a *Agent) NextBid(rnd RandSource, currentHighest int64) (int64, bool) {
	return NextBid(rnd, currentHighest, a.Ceiling)
}
