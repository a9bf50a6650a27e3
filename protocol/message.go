package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"proxyauction/auction"
)

const (
	ActionRegister = "REGISTER"
	ActionBid      = "BID"
	ActionProxyBid = "PROXY_BID"
	ActionWinner   = "WINNER"
)

// Request is the single JSON object a client sends per connection. Field names
// are part of the wire contract.
type Request struct {
	Action    string `json:"action"`
	BidderNum string `json:"bidder_num,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
	BidderID  string `json:"bidder_id,omitempty"`
	BidAmount string `json:"bid_amount,omitempty"`
	Signature string `json:"signature,omitempty"` // hex
	MaxBid    string `json:"max_bid,omitempty"`
}

const (
	RespRegSuccess       = "REG_SUCCESS"
	RespBidSuccess       = "BID_SUCCESS"
	RespProxySuccess     = "PROXY_SUCCESS"
	RespBidWinner        = "BID_WINNER"
	RespInvalidAction    = "INVALID_ACTION"
	RespInvalidBidder    = "INVALID_BIDDER: Invalid Bidder ID!"
	RespInvalidSignature = "INVALID_SIGNATURE: Invalid Bid Signature!"
	RespUnknownBidder    = "UNKNOWN_BIDDER: Unknown Bidder ID!"
	RespNoBids           = "NO_BIDS: No Valid Bids Received!"
	RespErrorPrefix      = "ERROR: "
)

var (
	ErrNoAction    = errors.New("no action")
	ErrNoBidderNum = errors.New("no bidder_num")
	ErrNoPublicKey = errors.New("no public_key")
	ErrNoBidderID  = errors.New("no bidder_id")
	ErrNoBidAmount = errors.New("no bid_amount")
	ErrNoSignature = errors.New("no signature")
	ErrNoMaxBid    = errors.New("no max_bid")

	// ErrUnexpectedResponse is returned when parsing a response string that
	// doesn't have the expected shape.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

func NewRegisterRequest(label string, publicKey []byte) *Request {
	return &Request{Action: ActionRegister, BidderNum: label, PublicKey: string(publicKey)}
}

func NewBidRequest(bidderID string, amount int64, signature []byte) *Request {
	return &Request{
		Action:    ActionBid,
		BidderID:  bidderID,
		BidAmount: strconv.FormatInt(amount, 10),
		Signature: hex.EncodeToString(signature),
	}
}

func NewProxyBidRequest(bidderID string, maxAmount int64) *Request {
	return &Request{Action: ActionProxyBid, BidderID: bidderID, MaxBid: strconv.FormatInt(maxAmount, 10)}
}

func NewWinnerRequest() *Request {
	return &Request{Action: ActionWinner}
}

//
//
//

func FormatRegisterResponse(bidderID string) string {
	return RespRegSuccess + " " + bidderID
}

func FormatWinnerResponse(w *auction.Winner) string {
	return fmt.Sprintf("%s %s with Amount %d", RespBidWinner, w.BidderID, w.Amount)
}

func FormatErrorResponse(err error) string {
	return RespErrorPrefix + err.Error()
}

// ParseRegisterResponse extracts the assigned bidder ID from a REGISTER
// response.
func ParseRegisterResponse(resp string) (string, error) {
	fields := strings.Fields(resp)
	if len(fields) != 2 || fields[0] != RespRegSuccess {
		return "", fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	return fields[1], nil
}

// ParseWinnerResponse returns the winner from a WINNER response, or
// auction.ErrNoBids for the no-bids message.
func ParseWinnerResponse(resp string) (*auction.Winner, error) {
	if resp == RespNoBids {
		return nil, auction.ErrNoBids
	}

	var (
		id     string
		amount int64
	)
	if n, err := fmt.Sscanf(resp, RespBidWinner+" %s with Amount %d", &id, &amount); err != nil || n != 2 {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}

	return &auction.Winner{BidderID: id, Amount: amount}, nil
}

// parseAmount accepts only the canonical base 10 form of a positive integer,
// since the string is what gets signed.
func parseAmount(field, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: not an integer", field, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s %d: must be positive", field, n)
	}
	if strconv.FormatInt(n, 10) != s {
		return 0, fmt.Errorf("%s %q: not in canonical form", field, s)
	}
	return n, nil
}

func parseSignature(s string) ([]byte, error) {
	sig, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("signature: not hex: %v", err)
	}
	return sig, nil
}
