package orders

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// allocate bumps the shop's OrderInfo counter inside tx. A counter last
// reset before today's start counts as zero.
func (s *Service) allocate(ctx context.Context, tx Tx, shopID string, now time.Time) (int, error) {
	info, err := tx.GetOrderInfo(ctx, shopID)
	if err != nil {
		return 0, err
	}
	if start := s.today(now); info.ResetAt.Before(start) {
		info.LastOrderIndex = 0
		info.ResetAt = start
	}
	info.ShopID = shopID
	info.LastOrderIndex++
	if err := tx.PutOrderInfo(ctx, info); err != nil {
		return 0, err
	}
	return info.LastOrderIndex, nil
}

// AllocateIndex reserves the next order index of the shop's day on its own.
func (s *Service) AllocateIndex(ctx context.Context, shopID string) (int, error) {
	var idx int
	err := s.mutate(ctx, "orders.AllocateIndex", "shop", shopID, shopID, func(ctx context.Context, tx Tx, _ *changeSet) error {
		if _, err := tx.GetShop(ctx, shopID); err != nil {
			return err
		}
		var err error
		idx, err = s.allocate(ctx, tx, shopID, s.now())
		return err
	})
	if errors.Is(err, ErrRetryExhausted) {
		return 0, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}
	return idx, err
}
