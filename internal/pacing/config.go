package pacing

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BehaviorPattern selects a characteristic sending rhythm. Each pattern has
// a base inter-message delay that the policy jitters and scales by risk.
type BehaviorPattern string

const (
	PatternOfficeWorker   BehaviorPattern = "office_worker"
	PatternCasualUser     BehaviorPattern = "casual_user"
	PatternBusinessUser   BehaviorPattern = "business_user"
	PatternStudent        BehaviorPattern = "student"
	PatternEveningUser    BehaviorPattern = "evening_user"
	PatternWeekendWarrior BehaviorPattern = "weekend_warrior"
	PatternCustom         BehaviorPattern = "custom"
)

// baseDelay returns the pattern's characteristic average delay.
func (p BehaviorPattern) baseDelay(custom time.Duration) time.Duration {
	switch p {
	case PatternOfficeWorker:
		return 45 * time.Second
	case PatternCasualUser:
		return 120 * time.Second
	case PatternBusinessUser:
		return 30 * time.Second
	case PatternStudent:
		return 90 * time.Second
	case PatternEveningUser:
		return 180 * time.Second
	case PatternWeekendWarrior:
		return 300 * time.Second
	case PatternCustom:
		return custom
	default:
		return 60 * time.Second
	}
}

// IsValid reports whether p is a known pattern.
func (p BehaviorPattern) IsValid() bool {
	switch p {
	case PatternOfficeWorker, PatternCasualUser, PatternBusinessUser,
		PatternStudent, PatternEveningUser, PatternWeekendWarrior, PatternCustom:
		return true
	}
	return false
}

// Config contains all rate and behavioral pacing settings.
// A limit of zero means unlimited for that dimension.
type Config struct {
	// Per-message delay bounds. MinDelay == MaxDelay is legal (fixed delay).
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`

	// Burst handling: after BurstSize consecutive sends, force a pause of
	// BurstPause before the next send.
	BurstSize  int           `yaml:"burst_size"`
	BurstPause time.Duration `yaml:"burst_pause"`

	// Batching.
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`

	// Transport retries per message.
	RetryAttempts int `yaml:"retry_attempts"`

	// Volume caps.
	DailyLimit  int `yaml:"daily_limit"`
	HourlyLimit int `yaml:"hourly_limit"`

	// Working-hour window [start, end), local time.
	WorkingHoursStart   int  `yaml:"working_hours_start"`
	WorkingHoursEnd     int  `yaml:"working_hours_end"`
	RespectWorkingHours bool `yaml:"respect_working_hours"`

	// No sending on Saturday/Sunday.
	WeekendRestricted bool `yaml:"weekend_restricted"`

	BehaviorPattern BehaviorPattern `yaml:"behavior_pattern"`

	// Long pause: after every LongPauseEvery total sends, pause for a
	// random duration in [LongPauseMin, LongPauseMax].
	LongPauseEvery int           `yaml:"long_pause_every"`
	LongPauseMin   time.Duration `yaml:"long_pause_min"`
	LongPauseMax   time.Duration `yaml:"long_pause_max"`

	// ExpertMode bypasses every limit and delay. Explicit opt-in only.
	ExpertMode bool `yaml:"expert_mode"`
}

// DefaultConfig returns the conservative defaults used when no pacing
// config file exists.
func DefaultConfig() Config {
	return Config{
		MinDelay:            30 * time.Second,
		MaxDelay:            180 * time.Second,
		BurstSize:           10,
		BurstPause:          60 * time.Second,
		BatchSize:           50,
		BatchDelay:          2 * time.Second,
		RetryAttempts:       2,
		DailyLimit:          500,
		HourlyLimit:         50,
		WorkingHoursStart:   8,
		WorkingHoursEnd:     18,
		RespectWorkingHours: true,
		WeekendRestricted:   true,
		BehaviorPattern:     PatternOfficeWorker,
		LongPauseEvery:      0,
		LongPauseMin:        5 * time.Minute,
		LongPauseMax:        15 * time.Minute,
	}
}

// Validate checks internal consistency of the config.
func (c *Config) Validate() error {
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("min_delay (%v) must not exceed max_delay (%v)", c.MinDelay, c.MaxDelay)
	}
	if c.WorkingHoursStart < 0 || c.WorkingHoursStart > 23 {
		return fmt.Errorf("working_hours_start must be in [0, 23], got %d", c.WorkingHoursStart)
	}
	if c.WorkingHoursEnd < 1 || c.WorkingHoursEnd > 24 {
		return fmt.Errorf("working_hours_end must be in [1, 24], got %d", c.WorkingHoursEnd)
	}
	if c.RespectWorkingHours && c.WorkingHoursStart >= c.WorkingHoursEnd {
		return fmt.Errorf("working_hours_start (%d) must be before working_hours_end (%d)",
			c.WorkingHoursStart, c.WorkingHoursEnd)
	}
	if c.BehaviorPattern != "" && !c.BehaviorPattern.IsValid() {
		return fmt.Errorf("unknown behavior_pattern %q", c.BehaviorPattern)
	}
	if c.LongPauseEvery > 0 && c.LongPauseMin > c.LongPauseMax {
		return fmt.Errorf("long_pause_min (%v) must not exceed long_pause_max (%v)",
			c.LongPauseMin, c.LongPauseMax)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative")
	}
	return nil
}

// LoadConfig reads a pacing config from a YAML file. The second return
// value is false when the file does not exist, so callers can distinguish
// "no user config yet" from a genuinely broken file.
func LoadConfig(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), false, nil
		}
		return Config{}, false, fmt.Errorf("failed to read pacing config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("failed to parse pacing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, true, fmt.Errorf("invalid pacing config: %w", err)
	}
	return cfg, true, nil
}

// SaveConfig writes cfg to a YAML file so it can be hand-edited between runs.
func SaveConfig(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal pacing config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pacing config: %w", err)
	}
	return nil
}
