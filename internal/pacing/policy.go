// Package pacing decides when the next message may be sent and how long to
// wait before it, so outbound traffic stays under the gateway's anti-spam
// radar: volume caps per day and hour, working-hour and weekend windows,
// and jittered human-looking inter-message delays.
package pacing

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// RiskLevel classifies how visible the current sending pattern is likely
// to be to the provider's spam detection.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// multiplier scales the base delay: the hotter the risk, the slower we go.
func (r RiskLevel) multiplier() float64 {
	switch r {
	case RiskMedium:
		return 1.5
	case RiskHigh:
		return 2.5
	case RiskCritical:
		return 4.0
	default:
		return 1.0
	}
}

// Decision is the outcome of a send-eligibility check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Policy implements the pacing rules over a Config and persisted usage
// counters. All methods are safe for concurrent use.
type Policy struct {
	mu    sync.Mutex
	cfg   Config
	stats *Stats
	rng   *rand.Rand
	now   func() time.Time

	burstCount int
	totalSent  int
}

// NewPolicy creates a Policy over cfg and stats.
func NewPolicy(cfg Config, stats *Stats) *Policy {
	return &Policy{
		cfg:   cfg,
		stats: stats,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

// Config returns a copy of the active configuration.
func (p *Policy) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// CanSend reports whether a message may be sent right now. When not
// allowed, RetryAfter is how long to wait before re-checking.
func (p *Policy) CanSend() Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canSendAt(p.now())
}

func (p *Policy) canSendAt(now time.Time) Decision {
	if p.cfg.ExpertMode {
		return Decision{Allowed: true, Reason: "expert mode, no restrictions"}
	}

	if p.cfg.DailyLimit > 0 {
		if sent := p.stats.SentToday(now); sent >= p.cfg.DailyLimit {
			return Decision{
				Reason:     fmt.Sprintf("daily limit reached (%d/%d)", sent, p.cfg.DailyLimit),
				RetryAfter: p.nextDayStart(now).Sub(now),
			}
		}
	}

	if p.cfg.HourlyLimit > 0 {
		if sent := p.stats.SentThisHour(now); sent >= p.cfg.HourlyLimit {
			nextHour := now.Truncate(time.Hour).Add(time.Hour)
			return Decision{
				Reason:     fmt.Sprintf("hourly limit reached (%d/%d)", sent, p.cfg.HourlyLimit),
				RetryAfter: nextHour.Sub(now),
			}
		}
	}

	if p.cfg.RespectWorkingHours && !p.withinWorkingHours(now) {
		return Decision{
			Reason:     "outside working hours",
			RetryAfter: p.nextWorkingTime(now).Sub(now),
		}
	}

	if p.cfg.WeekendRestricted && isWeekend(now) {
		return Decision{
			Reason:     "weekend sending restricted",
			RetryAfter: p.nextMonday(now).Sub(now),
		}
	}

	return Decision{Allowed: true, Reason: "send allowed"}
}

// NextDelay computes the jittered inter-message delay for the next send.
// The result always lies within [MinDelay, MaxDelay]; consecutive calls
// differ unless MinDelay == MaxDelay (fixed-delay mode).
func (p *Policy) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextDelayAt(p.now())
}

func (p *Policy) nextDelayAt(now time.Time) time.Duration {
	if p.cfg.ExpertMode {
		return 0
	}
	if p.cfg.MinDelay == p.cfg.MaxDelay {
		return p.cfg.MinDelay
	}

	base := p.cfg.BehaviorPattern.baseDelay(p.cfg.MinDelay)
	level, _ := p.assessRisk(now)

	lo := maxDuration(p.cfg.MinDelay, time.Duration(float64(base)*0.7))
	hi := minDuration(p.cfg.MaxDelay, time.Duration(float64(base)*level.multiplier()*1.5))
	if lo >= hi {
		return clampDuration(lo, p.cfg.MinDelay, p.cfg.MaxDelay)
	}

	// Gaussian centered between the bounds so delays cluster around a
	// plausible average instead of being uniform.
	center := float64(lo+hi) / 2
	sigma := float64(hi-lo) / 4
	d := time.Duration(p.rng.NormFloat64()*sigma + center)
	return clampDuration(d, lo, hi)
}

// Usage reports the persisted send counts for the current day and hour
// against their configured limits (zero limit means unlimited).
func (p *Policy) Usage() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	return Usage{
		SentToday:    p.stats.SentToday(now),
		SentThisHour: p.stats.SentThisHour(now),
		DailyLimit:   p.cfg.DailyLimit,
		HourlyLimit:  p.cfg.HourlyLimit,
	}
}

// Usage is a snapshot of the volume counters.
type Usage struct {
	SentToday    int `json:"sent_today"`
	SentThisHour int `json:"sent_this_hour"`
	DailyLimit   int `json:"daily_limit"`
	HourlyLimit  int `json:"hourly_limit"`
}

// Risk returns the current risk classification and its contributing factors.
func (p *Policy) Risk() (RiskLevel, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assessRisk(p.now())
}

func (p *Policy) assessRisk(now time.Time) (RiskLevel, []string) {
	score := 0
	var factors []string

	if p.cfg.DailyLimit > 0 {
		ratio := float64(p.stats.SentToday(now)) / float64(p.cfg.DailyLimit)
		if ratio > 0.8 {
			score += 3
			factors = append(factors, "close to daily limit")
		} else if ratio > 0.6 {
			score += 2
			factors = append(factors, "high daily usage")
		}
	}

	if p.cfg.HourlyLimit > 0 {
		ratio := float64(p.stats.SentThisHour(now)) / float64(p.cfg.HourlyLimit)
		if ratio > 0.7 {
			score += 2
			factors = append(factors, "intensive hourly usage")
		}
	}

	if h := now.Hour(); h < 8 || h > 20 {
		score++
		factors = append(factors, "sending at off-hours")
	}

	switch {
	case score >= 5:
		return RiskCritical, factors
	case score >= 3:
		return RiskHigh, factors
	case score >= 1:
		return RiskMedium, factors
	default:
		return RiskLow, factors
	}
}

// NoteSent records a successful send: bumps the persisted daily/hourly
// counters and the burst and long-pause trackers.
func (p *Policy) NoteSent() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.burstCount++
	p.totalSent++
	return p.stats.Record(p.now())
}

// PauseDue returns a mandatory pause owed after the last send: the burst
// pause once BurstSize sends have accumulated, or the long pause every
// LongPauseEvery total sends, whichever is longer. Consuming the burst
// pause resets the burst counter.
func (p *Policy) PauseDue() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.ExpertMode {
		return 0, false
	}

	var pause time.Duration
	if p.cfg.BurstSize > 0 && p.burstCount >= p.cfg.BurstSize {
		p.burstCount = 0
		pause = p.cfg.BurstPause
	}

	if p.cfg.LongPauseEvery > 0 && p.totalSent > 0 && p.totalSent%p.cfg.LongPauseEvery == 0 {
		long := p.cfg.LongPauseMin
		if p.cfg.LongPauseMax > p.cfg.LongPauseMin {
			long += time.Duration(p.rng.Int63n(int64(p.cfg.LongPauseMax - p.cfg.LongPauseMin)))
		}
		if long > pause {
			pause = long
		}
	}

	return pause, pause > 0
}

func (p *Policy) withinWorkingHours(now time.Time) bool {
	h := now.Hour()
	return h >= p.cfg.WorkingHoursStart && h < p.cfg.WorkingHoursEnd
}

// nextDayStart is when sending may resume after the daily cap: tomorrow at
// window open when working hours apply, otherwise tomorrow at midnight.
func (p *Policy) nextDayStart(now time.Time) time.Time {
	tomorrow := now.AddDate(0, 0, 1)
	hour := 0
	if p.cfg.RespectWorkingHours {
		hour = p.cfg.WorkingHoursStart
	}
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hour, 0, 0, 0, now.Location())
}

func (p *Policy) nextWorkingTime(now time.Time) time.Time {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), p.cfg.WorkingHoursStart, 0, 0, 0, now.Location())
	if now.Hour() < p.cfg.WorkingHoursStart {
		return todayStart
	}
	return todayStart.AddDate(0, 0, 1)
}

func (p *Policy) nextMonday(now time.Time) time.Time {
	days := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	monday := now.AddDate(0, 0, days)
	hour := 0
	if p.cfg.RespectWorkingHours {
		hour = p.cfg.WorkingHoursStart
	}
	return time.Date(monday.Year(), monday.Month(), monday.Day(), hour, 0, 0, 0, now.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
