package backtest

import (
	"math"
)

// periodsPerYear annualizes daily returns; crypto trades every day.
const periodsPerYear = 365

// CalculateStats computes performance statistics from a value trajectory.
// The leading seed entry is included, so Days is len(traj)-1.
func CalculateStats(traj Trajectory) Stats {
	if len(traj) < 2 {
		return Stats{}
	}

	values := traj.Floats()
	first, last := values[0], values[len(values)-1]

	var totalReturn float64
	if first != 0 {
		totalReturn = (last - first) / first
	}

	return Stats{
		Days:        len(values) - 1,
		TotalReturn: totalReturn * 100, // Convert to percentage
		MaxDrawdown: calculateMaxDrawdown(values) * 100,
		SharpeRatio: calculateSharpeRatio(dailyReturns(values)),
	}
}

// dailyReturns skips steps starting from zero value, where no return is defined.
func dailyReturns(values []float64) []float64 {
	var returns []float64
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}

// calculateMaxDrawdown finds the largest peak-to-trough decline
func calculateMaxDrawdown(values []float64) float64 {
	var maxDD, peak float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 for simplicity
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	return mean / stdDev * math.Sqrt(periodsPerYear)
}
