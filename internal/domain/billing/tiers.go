package billing

// Tier is a priced billing band selected by seat count.
type Tier string

const (
	TierStarter Tier = "starter"
	TierGrowth  Tier = "growth"
	TierScale   Tier = "scale"
)

// Seat-count band boundaries. A tenant's tier is the band containing its
// current seat count; bands are contiguous so SelectTier is total and
// monotonic in the seat count.
const (
	starterMaxSeats = 5
	growthMaxSeats  = 20
)

// SelectTier returns the price tier for the given seat count.
func SelectTier(seats int) Tier {
	switch {
	case seats <= starterMaxSeats:
		return TierStarter
	case seats <= growthMaxSeats:
		return TierGrowth
	default:
		return TierScale
	}
}

// DefaultPriceIDs maps each tier to its provider price id. Overridable via
// billing config so test and live price ids can differ per environment.
var DefaultPriceIDs = map[Tier]string{
	TierStarter: "price_teamline_starter",
	TierGrowth:  "price_teamline_growth",
	TierScale:   "price_teamline_scale",
}
