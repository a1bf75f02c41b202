package clean

import (
	"errors"
	"fmt"
	"slices"
)

// Rules holds the reference sets the fact and dimension rules check against.
type Rules struct {
	TruckIDs         []int64
	PaymentMethodIDs []int64
	MinFSARating     int64
	MaxFSARating     int64
}

// DefaultRules returns the current fleet: trucks 1 to 6, cash and card, ratings 1 to 5.
func DefaultRules() Rules {
	return Rules{
		TruckIDs:         []int64{1, 2, 3, 4, 5, 6},
		PaymentMethodIDs: []int64{1, 2},
		MinFSARating:     1,
		MaxFSARating:     5,
	}
}

func (r Rules) Validate() error {
	if len(r.TruckIDs) == 0 {
		return errors.New("at least one valid truck id is required")
	}
	if len(r.PaymentMethodIDs) == 0 {
		return errors.New("at least one valid payment method id is required")
	}
	if r.MinFSARating > r.MaxFSARating {
		return fmt.Errorf("fsa rating range [%d, %d] is empty", r.MinFSARating, r.MaxFSARating)
	}
	return nil
}

func (r Rules) String() string {
	return fmt.Sprintf("trucks=%v payment_methods=%v fsa_rating=[%d,%d]",
		sorted(r.TruckIDs), sorted(r.PaymentMethodIDs), r.MinFSARating, r.MaxFSARating)
}

func sorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
