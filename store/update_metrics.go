package store

import (
	"context"
	"fmt"

	"proxyauction/metrics"
)

func UpdateMetrics(ctx context.Context, s Store) (err error) {
	bidders, err := s.ListBidders(ctx)
	if err != nil {
		return fmt.Errorf("list bidders: %w", err)
	}

	bids, err := s.ListBids(ctx)
	if err != nil {
		return fmt.Errorf("list bids: %w", err)
	}

	ceilings, err := s.ListProxyCeilings(ctx)
	if err != nil {
		return fmt.Errorf("list proxy ceilings: %w", err)
	}

	var highest int64
	for _, b := range bids {
		if b.Amount > highest {
			highest = b.Amount
		}
	}

	metrics.BiddersRegistered.Set(float64(len(bidders)))
	metrics.BidsRecorded.Set(float64(len(bids)))
	metrics.ProxyCeilingsRecorded.Set(float64(len(ceilings)))
	metrics.HighestBidAmount.Set(float64(highest))

	return nil
}
