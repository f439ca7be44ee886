package billing

// Tariff converts billable seconds into coins.
//
// Rule: billable seconds are rounded up to IncrementSeconds, then
// coins = ceil(roundedSeconds * ratePerMinute / 60). The receiver earns
// floor(coins * EarnSharePercent / 100).
//
// With the default 1s increment a partial minute is billed proportionally, rounded up
// to a whole coin. An increment of 60 bills every started minute in full.
type Tariff struct {
	IncrementSeconds int
	EarnSharePercent int
}

func DefaultTariff() Tariff {
	return Tariff{IncrementSeconds: 1, EarnSharePercent: 100}
}

// Quote is the priced outcome of one call.
type Quote struct {
	BillableSeconds int64
	RoundedSeconds  int64
	RatePerMinute   int64
	Spent           int64
	Earned          int64
}

func (t Tariff) Quote(billableSecs, ratePerMinute int64) Quote {
	q := Quote{BillableSeconds: billableSecs, RatePerMinute: ratePerMinute}
	if billableSecs <= 0 || ratePerMinute <= 0 {
		return q
	}
	q.RoundedSeconds = roundUp(billableSecs, int64(t.IncrementSeconds))
	q.Spent = ceilDiv(q.RoundedSeconds*ratePerMinute, 60)

	share := int64(t.EarnSharePercent)
	if share < 0 {
		share = 0
	}
	if share > 100 {
		share = 100
	}
	q.Earned = q.Spent * share / 100
	return q
}

func roundUp(sec, increment int64) int64 {
	if increment <= 0 {
		increment = 1
	}
	n := sec / increment
	if sec%increment != 0 {
		n++
	}
	return n * increment
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
