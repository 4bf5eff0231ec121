package types

// FlavoursStock is the total mapping Flavour -> remaining count. There
// is logically one stock for the whole ring; physically every peer
// caches the snapshot it last observed riding the token.
type FlavoursStock map[Flavour]uint32

// InitialStock seeds every flavour at InitialStockPerFlavour, the value
// the first leader releases onto the ring.
func InitialStock() FlavoursStock {
	stock := make(FlavoursStock, len(AllFlavours))
	for _, f := range AllFlavours {
		stock[f] = InitialStockPerFlavour
	}
	return stock
}

// Clone returns an independent copy, since the snapshot travels with
// the token and must not alias the sender's copy.
func (s FlavoursStock) Clone() FlavoursStock {
	clone := make(FlavoursStock, len(s))
	for f, n := range s {
		clone[f] = n
	}
	return clone
}

// CanPrepare reports whether deducting every container of order from
// stock would keep every touched flavour non-negative, without
// mutating stock.
func (s FlavoursStock) CanPrepare(order Order) bool {
	working := s.Clone()
	for _, container := range order.Containers {
		amount := container.PerFlavourAmount()
		for _, f := range container.Flavours {
			if working[f] < amount {
				return false
			}
			working[f] -= amount
		}
	}
	return true
}

// Deduct applies every container of order to stock in place. Callers
// must have already checked CanPrepare; Deduct does not re-validate.
func (s FlavoursStock) Deduct(order Order) {
	for _, container := range order.Containers {
		amount := container.PerFlavourAmount()
		for _, f := range container.Flavours {
			s[f] -= amount
		}
	}
}

// PrepareDuration is the simulated preparation time for order: one
// millisecond of work per unit of container size, summed across
// containers, matching the token handler's "sleep size milliseconds
// per container" rule.
func (o Order) PrepareDuration() (totalMillis uint32) {
	for _, c := range o.Containers {
		totalMillis += uint32(c.Size)
	}
	return totalMillis
}
