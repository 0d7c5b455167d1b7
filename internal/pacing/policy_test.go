package pacing

import (
	"path/filepath"
	"testing"
	"time"
)

func setupStats(t *testing.T) *Stats {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stats.db")
	stats, err := OpenStats(path)
	if err != nil {
		t.Fatalf("failed to open stats: %v", err)
	}
	t.Cleanup(func() { stats.Close() })
	return stats
}

// weekday 10:00, inside the default working window
var testNow = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

func newTestPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()

	p := NewPolicy(cfg, setupStats(t))
	p.now = func() time.Time { return testNow }
	return p
}

func TestCanSendDefaultConfig(t *testing.T) {
	p := newTestPolicy(t, DefaultConfig())

	d := p.CanSend()
	if !d.Allowed {
		t.Fatalf("expected send allowed, got reason %q", d.Reason)
	}
}

func TestDailyLimitBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLimit = 3
	p := newTestPolicy(t, cfg)

	for i := 0; i < 3; i++ {
		if err := p.NoteSent(); err != nil {
			t.Fatalf("NoteSent failed: %v", err)
		}
	}

	d := p.CanSend()
	if d.Allowed {
		t.Fatal("expected daily limit to block")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", d.RetryAfter)
	}
	// Tomorrow 08:00 is 22h away from 10:00.
	want := 22 * time.Hour
	if d.RetryAfter != want {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, want)
	}
}

func TestHourlyLimitBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HourlyLimit = 2
	p := newTestPolicy(t, cfg)

	for i := 0; i < 2; i++ {
		if err := p.NoteSent(); err != nil {
			t.Fatalf("NoteSent failed: %v", err)
		}
	}

	d := p.CanSend()
	if d.Allowed {
		t.Fatal("expected hourly limit to block")
	}
	if d.RetryAfter != time.Hour {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, time.Hour)
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLimit = 0
	cfg.HourlyLimit = 0
	p := newTestPolicy(t, cfg)

	for i := 0; i < 100; i++ {
		if err := p.NoteSent(); err != nil {
			t.Fatalf("NoteSent failed: %v", err)
		}
	}
	if d := p.CanSend(); !d.Allowed {
		t.Errorf("zero limits must never block, got reason %q", d.Reason)
	}
}

func TestWorkingHoursBlock(t *testing.T) {
	cfg := DefaultConfig()
	p := newTestPolicy(t, cfg)
	// 06:00, before the 08:00 window opens.
	p.now = func() time.Time {
		return time.Date(2026, time.March, 4, 6, 0, 0, 0, time.UTC)
	}

	d := p.CanSend()
	if d.Allowed {
		t.Fatal("expected working-hours restriction to block at 06:00")
	}
	if d.RetryAfter != 2*time.Hour {
		t.Errorf("RetryAfter = %v, want 2h", d.RetryAfter)
	}

	// 22:00, after close: next window is tomorrow 08:00.
	p.now = func() time.Time {
		return time.Date(2026, time.March, 4, 22, 0, 0, 0, time.UTC)
	}
	d = p.CanSend()
	if d.Allowed {
		t.Fatal("expected working-hours restriction to block at 22:00")
	}
	if d.RetryAfter != 10*time.Hour {
		t.Errorf("RetryAfter = %v, want 10h", d.RetryAfter)
	}
}

func TestWeekendBlocksUntilMonday(t *testing.T) {
	cfg := DefaultConfig()
	p := newTestPolicy(t, cfg)
	// Saturday 10:00.
	p.now = func() time.Time {
		return time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
	}

	d := p.CanSend()
	if d.Allowed {
		t.Fatal("expected weekend restriction to block on Saturday")
	}
	// Monday 08:00 is 1 day 22h away.
	want := 46 * time.Hour
	if d.RetryAfter != want {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, want)
	}
}

func TestExpertModeBypassesEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpertMode = true
	cfg.DailyLimit = 1
	p := newTestPolicy(t, cfg)

	if err := p.NoteSent(); err != nil {
		t.Fatalf("NoteSent failed: %v", err)
	}

	d := p.CanSend()
	if !d.Allowed {
		t.Fatalf("expert mode must bypass limits, got reason %q", d.Reason)
	}
	if delay := p.NextDelay(); delay != 0 {
		t.Errorf("NextDelay = %v, want 0 in expert mode", delay)
	}
}

func TestNextDelayBoundsAndJitter(t *testing.T) {
	cfg := DefaultConfig()
	p := newTestPolicy(t, cfg)

	seen := make(map[time.Duration]bool)
	for i := 0; i < 1000; i++ {
		d := p.NextDelay()
		if d < cfg.MinDelay || d > cfg.MaxDelay {
			t.Fatalf("sample %d: delay %v outside [%v, %v]", i, d, cfg.MinDelay, cfg.MaxDelay)
		}
		seen[d] = true
	}
	if len(seen) < 2 {
		t.Error("all 1000 samples identical, jitter missing")
	}
}

func TestFixedDelayWhenBoundsEqual(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDelay = 5 * time.Second
	cfg.MaxDelay = 5 * time.Second
	p := newTestPolicy(t, cfg)

	for i := 0; i < 10; i++ {
		if d := p.NextDelay(); d != 5*time.Second {
			t.Fatalf("fixed-delay config returned %v, want 5s", d)
		}
	}
}

func TestBurstPause(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BurstSize = 3
	cfg.BurstPause = 30 * time.Second
	cfg.LongPauseEvery = 0
	p := newTestPolicy(t, cfg)

	for i := 0; i < 2; i++ {
		if err := p.NoteSent(); err != nil {
			t.Fatal(err)
		}
		if d, due := p.PauseDue(); due {
			t.Fatalf("pause due after %d sends (%v), want none before burst size", i+1, d)
		}
	}

	if err := p.NoteSent(); err != nil {
		t.Fatal(err)
	}
	d, due := p.PauseDue()
	if !due {
		t.Fatal("expected burst pause after 3 sends")
	}
	if d != 30*time.Second {
		t.Errorf("burst pause = %v, want 30s", d)
	}

	// Counter reset: next send does not immediately owe another pause.
	if err := p.NoteSent(); err != nil {
		t.Fatal(err)
	}
	if _, due := p.PauseDue(); due {
		t.Error("burst counter should reset after the pause")
	}
}

func TestLongPause(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BurstSize = 0
	cfg.LongPauseEvery = 5
	cfg.LongPauseMin = time.Minute
	cfg.LongPauseMax = 2 * time.Minute
	p := newTestPolicy(t, cfg)

	for i := 0; i < 5; i++ {
		if err := p.NoteSent(); err != nil {
			t.Fatal(err)
		}
	}

	d, due := p.PauseDue()
	if !due {
		t.Fatal("expected long pause after 5 sends")
	}
	if d < time.Minute || d > 2*time.Minute {
		t.Errorf("long pause %v outside [1m, 2m]", d)
	}
}

func TestRiskRisesWithUtilization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLimit = 10
	cfg.HourlyLimit = 10
	p := newTestPolicy(t, cfg)

	level, _ := p.Risk()
	if level != RiskLow {
		t.Errorf("fresh policy risk = %s, want low", level)
	}

	for i := 0; i < 9; i++ {
		if err := p.NoteSent(); err != nil {
			t.Fatal(err)
		}
	}

	level, factors := p.Risk()
	if level != RiskCritical && level != RiskHigh {
		t.Errorf("risk at 90%% utilization = %s, want high or critical", level)
	}
	if len(factors) == 0 {
		t.Error("expected risk factors at high utilization")
	}
}

func TestStatsPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.db")

	stats, err := OpenStats(path)
	if err != nil {
		t.Fatalf("failed to open stats: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := stats.Record(testNow); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	stats.Close()

	reopened, err := OpenStats(path)
	if err != nil {
		t.Fatalf("failed to reopen stats: %v", err)
	}
	defer reopened.Close()

	if got := reopened.SentToday(testNow); got != 3 {
		t.Errorf("SentToday after reopen = %d, want 3", got)
	}
	if got := reopened.SentThisHour(testNow); got != 3 {
		t.Errorf("SentThisHour after reopen = %d, want 3", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	bad := DefaultConfig()
	bad.MinDelay = 10 * time.Second
	bad.MaxDelay = 5 * time.Second
	if err := bad.Validate(); err == nil {
		t.Error("min > max must fail validation")
	}

	bad = DefaultConfig()
	bad.BehaviorPattern = "night_owl"
	if err := bad.Validate(); err == nil {
		t.Error("unknown behavior pattern must fail validation")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacing.yaml")

	cfg := DefaultConfig()
	cfg.DailyLimit = 42
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, found, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true for existing file")
	}
	if loaded.DailyLimit != 42 {
		t.Errorf("DailyLimit = %d, want 42", loaded.DailyLimit)
	}

	_, found, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if found {
		t.Error("expected found=false for missing file")
	}
}

func TestRecommend(t *testing.T) {
	p := newTestPolicy(t, DefaultConfig())

	rec := p.Recommend(1000)
	if rec.RecommendedBatch <= 0 {
		t.Error("recommended batch must be positive")
	}
	if !rec.DistributeOverDays {
		t.Error("1000 messages should suggest multi-day distribution")
	}
	if rec.EstimatedDuration <= 0 {
		t.Error("estimated duration must be positive")
	}
}
