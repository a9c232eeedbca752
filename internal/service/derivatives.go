package service

import (
	"sort"

	"alpha-arena/internal/domain"
)

// OpenInterestFromSamples averages the newest window samples. Latest is the
// newest sample; DeviationPct is 0 when the average is 0.
func OpenInterestFromSamples(samples []domain.OpenInterestSample, window int) domain.OpenInterestSnapshot {
	if len(samples) == 0 {
		return domain.OpenInterestSnapshot{}
	}
	sorted := append([]domain.OpenInterestSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	if window > 0 && len(sorted) > window {
		sorted = sorted[len(sorted)-window:]
	}

	var sum float64
	for _, s := range sorted {
		sum += s.Value
	}
	avg := sum / float64(len(sorted))
	latest := sorted[len(sorted)-1].Value

	snap := domain.OpenInterestSnapshot{Latest: latest, Average: avg}
	if avg != 0 {
		snap.DeviationPct = (latest - avg) / avg * 100
	}
	return snap
}

// FundingFromSamples orders samples oldest to newest, keeps the newest window
// and reports the current rate with its persistence.
func FundingFromSamples(samples []domain.FundingRateSample, window int) domain.FundingRateSnapshot {
	if len(samples) == 0 {
		return domain.FundingRateSnapshot{}
	}
	sorted := append([]domain.FundingRateSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	if window > 0 && len(sorted) > window {
		sorted = sorted[len(sorted)-window:]
	}

	rates := make([]float64, len(sorted))
	for i, s := range sorted {
		rates[i] = s.Rate
	}
	return domain.FundingRateSnapshot{
		CurrentRate:     rates[len(rates)-1],
		PersistenceBars: FundingPersistence(rates),
	}
}

// FundingPersistence counts the trailing run of rates sharing the sign of the
// newest rate. A zero rate breaks the run, so a newest rate of 0 yields 0.
func FundingPersistence(rates []float64) int {
	if len(rates) == 0 {
		return 0
	}
	sign := signOf(rates[len(rates)-1])
	if sign == 0 {
		return 0
	}
	count := 0
	for i := len(rates) - 1; i >= 0; i-- {
		if signOf(rates[i]) != sign {
			break
		}
		count++
	}
	return count
}

func signOf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
