package pacing

import (
	"fmt"
	"time"
)

// Recommendations summarizes how a planned campaign of a given size fits
// the current limits, for display before the operator commits to a run.
type Recommendations struct {
	TotalMessages      int           `json:"total_messages"`
	RiskLevel          RiskLevel     `json:"risk_level"`
	RiskFactors        []string      `json:"risk_factors"`
	EstimatedDuration  time.Duration `json:"estimated_duration"`
	RecommendedBatch   int           `json:"recommended_batch_size"`
	OptimalStart       string        `json:"optimal_start"`
	DistributeOverDays bool          `json:"distribute_over_days"`
	Suggestions        []string      `json:"suggestions,omitempty"`
}

// Recommend analyzes a planned send of total messages.
func (p *Policy) Recommend(total int) Recommendations {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	level, factors := p.assessRisk(now)

	rec := Recommendations{
		TotalMessages:      total,
		RiskLevel:          level,
		RiskFactors:        factors,
		EstimatedDuration:  time.Duration(total) * p.nextDelayAt(now),
		RecommendedBatch:   recommendedBatch(total, level),
		OptimalStart:       p.optimalStart(now),
		DistributeOverDays: total > 200,
	}

	switch {
	case level == RiskCritical:
		rec.Suggestions = append(rec.Suggestions, "critical risk: reduce volume or wait until tomorrow")
	case level == RiskHigh:
		rec.Suggestions = append(rec.Suggestions, "high risk: increase delays or spread over several days")
	case total > 500:
		rec.Suggestions = append(rec.Suggestions, "large volume: consider spreading over several days")
	}
	if !p.cfg.RespectWorkingHours && !p.cfg.ExpertMode {
		rec.Suggestions = append(rec.Suggestions, "enable working hours for a more natural sending pattern")
	}

	return rec
}

func recommendedBatch(total int, level RiskLevel) int {
	base := 50
	switch level {
	case RiskMedium:
		base = 30
	case RiskHigh:
		base = 20
	case RiskCritical:
		base = 10
	}
	if total < base {
		base = total
	}
	if base < 1 {
		base = 1
	}
	return base
}

func (p *Policy) optimalStart(now time.Time) string {
	if !p.cfg.RespectWorkingHours || p.withinWorkingHours(now) {
		return "now"
	}
	return fmt.Sprintf("next window at %s", p.nextWorkingTime(now).Format("2006-01-02 15:04"))
}
