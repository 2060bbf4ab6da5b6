package core

import (
	"math"

	"missionhub/pkg/models"
)

// Tier lower bounds, inclusive
const (
	excellentFloor = 90
	goodFloor      = 75
	fairFloor      = 50
)

var tierMultipliers = map[models.PerformanceTier]float64{
	models.TierExcellent: 1.5,
	models.TierGood:      1.25,
	models.TierFair:      1.0,
	models.TierPoor:      0.75,
}

// TierFor buckets a score percentage
func TierFor(pct int) models.PerformanceTier {
	switch {
	case pct >= excellentFloor:
		return models.TierExcellent
	case pct >= goodFloor:
		return models.TierGood
	case pct >= fairFloor:
		return models.TierFair
	default:
		return models.TierPoor
	}
}

// MultiplierFor returns the arcade bonus factor for a tier
func MultiplierFor(tier models.PerformanceTier) float64 {
	if m, ok := tierMultipliers[tier]; ok {
		return m
	}
	return 1
}

// Aggregate folds structured activity results into the mission verdict.
// Results for activities outside the mission are ignored.
func Aggregate(mission *models.MissionDefinition, activities []models.ActivityDefinition, results []models.ActivityResult) models.MissionAggregate {
	agg := models.MissionAggregate{Multiplier: 1}

	byID := make(map[string]models.ActivityResult, len(results))
	for _, r := range results {
		byID[r.ActivityID] = r
	}

	for _, a := range activities {
		agg.MaxPoints += a.PointValue
		r, ok := byID[a.ID]
		if !ok {
			continue
		}
		agg.PointsEarned += r.PointsEarned
		agg.TimeSpentMs += r.TimeSpentMs
		agg.ActivityCount++
	}

	if agg.MaxPoints > 0 {
		agg.ScorePercentage = agg.PointsEarned * 100 / agg.MaxPoints
	}
	agg.PerformanceTier = TierFor(agg.ScorePercentage)
	agg.Passed = agg.ScorePercentage >= mission.PassBar()
	return agg
}

// AggregateSession scores an arcade session from its live-play counts
func AggregateSession(mission *models.MissionDefinition, s models.SessionScore) models.MissionAggregate {
	pct := sessionPercentage(s)
	tier := TierFor(pct)
	multiplier := MultiplierFor(tier)

	score := s.Score
	if score < 0 {
		score = 0
	}

	return models.MissionAggregate{
		ScorePercentage: pct,
		PointsEarned:    int(math.Floor(float64(score) * multiplier)),
		MaxPoints:       0,
		Passed:          pct >= mission.PassBar(),
		PerformanceTier: tier,
		Multiplier:      multiplier,
		TimeSpentMs:     s.TimeSpentMs,
		ActivityCount:   nonNegative(s.Correct) + nonNegative(s.Wrong),
	}
}

// sessionPercentage prefers the correct/wrong counts and falls back to the
// reported accuracy
func sessionPercentage(s models.SessionScore) int {
	correct, wrong := nonNegative(s.Correct), nonNegative(s.Wrong)
	if correct+wrong > 0 {
		return correct * 100 / (correct + wrong)
	}
	acc := s.Accuracy
	if math.IsNaN(acc) || acc < 0 {
		return 0
	}
	if acc > 100 {
		return 100
	}
	return int(math.Floor(acc))
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
