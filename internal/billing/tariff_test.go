package billing

import "testing"

func TestTariff_Quote(t *testing.T) {
	cases := []struct {
		name   string
		tariff Tariff
		secs   int64
		rate   int64
		spent  int64
		earned int64
	}{
		{name: "one minute at 10", tariff: DefaultTariff(), secs: 60, rate: 10, spent: 10, earned: 10},
		{name: "partial minute rounds up to a coin", tariff: DefaultTariff(), secs: 61, rate: 10, spent: 11, earned: 11},
		{name: "proportional", tariff: DefaultTariff(), secs: 30, rate: 10, spent: 5, earned: 5},
		{name: "never joined", tariff: DefaultTariff(), secs: 0, rate: 10, spent: 0, earned: 0},
		{name: "free receiver", tariff: DefaultTariff(), secs: 120, rate: 0, spent: 0, earned: 0},
		{name: "per started minute", tariff: Tariff{IncrementSeconds: 60, EarnSharePercent: 100}, secs: 61, rate: 10, spent: 20, earned: 20},
		{name: "earn share floors", tariff: Tariff{IncrementSeconds: 1, EarnSharePercent: 70}, secs: 60, rate: 7, spent: 7, earned: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.tariff.Quote(tc.secs, tc.rate)
			if q.Spent != tc.spent || q.Earned != tc.earned {
				t.Fatalf("expected spent=%d earned=%d, got %+v", tc.spent, tc.earned, q)
			}
		})
	}
}
