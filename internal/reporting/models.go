package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest asks for one user's coin movements over a range.
type SummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

// CoinSummary aggregates immutable ledger entries. Amounts are positive coin counts.
type CoinSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	Spent    int64 `json:"spent"`
	Earned   int64 `json:"earned"`
	Refunded int64 `json:"refunded"`
	Bonus    int64 `json:"bonus"`

	// Net is the signed balance change over the range.
	Net int64 `json:"net"`

	// BilledCalls counts distinct calls that produced a SPENT or EARNED entry for the user.
	BilledCalls int `json:"billed_calls"`
}
