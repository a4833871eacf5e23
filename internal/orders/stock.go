package orders

import "time"

// Claim moves an idle unit to working under barista. Re-claiming by the
// same barista is a no-op; a unit held by someone else is a conflict.
func Claim(s Stock, barista int, now time.Time) (Stock, bool, error) {
	if barista == 0 {
		return s, false, validationf("barista id is required")
	}
	switch s.Status {
	case StockIdle:
		s.Status = StockWorking
		s.BaristaID = barista
		s.StartWorkingAt = now
		s.UpdatedAt = now
		return s, true, nil
	case StockWorking:
		if s.BaristaID == barista {
			return s, false, nil
		}
		return s, false, ErrConflict
	}
	return s, false, transitionf("stock %s is %s", s.ID, s.Status)
}

// Complete finishes a unit. Idle units may be completed directly by the
// cashier; the barista id is kept for audit.
func Complete(s Stock, now time.Time) (Stock, bool) {
	if s.Status == StockCompleted {
		return s, false
	}
	s.Status = StockCompleted
	s.UpdatedAt = now
	return s, true
}

// Revert steps a unit back one state: completed -> working (timer restarts)
// or working -> idle (assignment cleared). A unit completed without ever
// being claimed has no one to work on it and goes back to idle.
func Revert(s Stock, now time.Time) (Stock, error) {
	switch s.Status {
	case StockCompleted:
		if s.BaristaID == 0 {
			s.Status = StockIdle
			s.StartWorkingAt = time.Time{}
			break
		}
		s.Status = StockWorking
		s.StartWorkingAt = now
	case StockWorking:
		s.Status = StockIdle
		s.BaristaID = 0
		s.StartWorkingAt = time.Time{}
	default:
		return s, transitionf("stock %s is already %s", s.ID, s.Status)
	}
	s.UpdatedAt = now
	return s, nil
}
