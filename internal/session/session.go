// Package session tracks the progress of one bulk campaign run and
// persists it so an interrupted run can resume from its last completed
// batch.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capped so a mostly-failing 10k campaign cannot balloon the session file;
// the first hundred samples are enough to diagnose the failure mode.
const maxErrorSamples = 100

// SendError is one captured per-message failure sample.
type SendError struct {
	Identifier string  `json:"identifier"`
	Error      string  `json:"error"`
	Timestamp  float64 `json:"timestamp"`
}

// Session is the mutable record of one campaign run.
type Session struct {
	ID            string      `json:"session_id"`
	TotalMessages int         `json:"total_messages"`
	Completed     int         `json:"completed"`
	Successful    int         `json:"successful"`
	Failed        int         `json:"failed"`
	CurrentBatch  int         `json:"current_batch"`
	StartTime     int64       `json:"start_time"`
	Paused        bool        `json:"paused"`
	Cancelled     bool        `json:"cancelled"`
	Errors        []SendError `json:"error_messages"`
}

// New creates a session for a campaign of total messages.
func New(total int) *Session {
	now := time.Now()
	id := fmt.Sprintf("campaign_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
	return &Session{
		ID:            id,
		TotalMessages: total,
		StartTime:     now.Unix(),
	}
}

// RecordSuccess counts one successfully delivered message.
func (s *Session) RecordSuccess() {
	s.Completed++
	s.Successful++
}

// RecordFailure counts one permanently failed message and keeps a sample of
// the error. Once the sample list is full further errors are dropped,
// oldest-first retention.
func (s *Session) RecordFailure(identifier, errMsg string) {
	s.Completed++
	s.Failed++
	if len(s.Errors) < maxErrorSamples {
		s.Errors = append(s.Errors, SendError{
			Identifier: identifier,
			Error:      errMsg,
			Timestamp:  float64(time.Now().UnixNano()) / float64(time.Second),
		})
	}
}

// Remaining returns the number of messages not yet processed.
func (s *Session) Remaining() int {
	return s.TotalMessages - s.Completed
}

// Finished reports whether every message has been processed.
func (s *Session) Finished() bool {
	return s.Completed >= s.TotalMessages
}

// CheckInvariants verifies the counter relationships that must hold at all
// times. A violation indicates a bug in the orchestrator, not bad input.
func (s *Session) CheckInvariants() error {
	if s.Completed != s.Successful+s.Failed {
		return fmt.Errorf("session %s: completed=%d != successful=%d + failed=%d",
			s.ID, s.Completed, s.Successful, s.Failed)
	}
	if s.Completed > s.TotalMessages {
		return fmt.Errorf("session %s: completed=%d exceeds total=%d",
			s.ID, s.Completed, s.TotalMessages)
	}
	return nil
}

// Stats is a derived progress summary for display.
type Stats struct {
	SessionID    string         `json:"session_id"`
	Total        int            `json:"total"`
	Completed    int            `json:"completed"`
	Successful   int            `json:"successful"`
	Failed       int            `json:"failed"`
	SuccessRate  float64        `json:"success_rate"`
	Progress     float64        `json:"progress_percentage"`
	Elapsed      time.Duration  `json:"elapsed"`
	PerSecond    float64        `json:"messages_per_second"`
	ETA          time.Duration  `json:"estimated_time_remaining"`
	CurrentBatch int            `json:"current_batch"`
	Paused       bool           `json:"paused"`
	Cancelled    bool           `json:"cancelled"`
	TopErrors    map[string]int `json:"top_errors,omitempty"`
}

// ComputeStats derives a Stats snapshot from s as of now.
func (s *Session) ComputeStats(now time.Time) Stats {
	st := Stats{
		SessionID:    s.ID,
		Total:        s.TotalMessages,
		Completed:    s.Completed,
		Successful:   s.Successful,
		Failed:       s.Failed,
		CurrentBatch: s.CurrentBatch,
		Paused:       s.Paused,
		Cancelled:    s.Cancelled,
		Elapsed:      now.Sub(time.Unix(s.StartTime, 0)),
	}

	if s.Completed > 0 {
		st.SuccessRate = float64(s.Successful) / float64(s.Completed) * 100
	}
	if s.TotalMessages > 0 {
		st.Progress = float64(s.Completed) / float64(s.TotalMessages) * 100
	}
	if st.Elapsed > 0 {
		st.PerSecond = float64(s.Completed) / st.Elapsed.Seconds()
	}
	if st.PerSecond > 0 {
		st.ETA = time.Duration(float64(s.Remaining())/st.PerSecond) * time.Second
	}

	if len(s.Errors) > 0 {
		st.TopErrors = make(map[string]int)
		for _, e := range s.Errors {
			key := e.Error
			// Rune-wise so a multi-byte gateway message is not split.
			if runes := []rune(key); len(runes) > 50 {
				key = string(runes[:50])
			}
			st.TopErrors[key]++
		}
	}

	return st
}

// Summary is the compact listing entry for ListAll.
type Summary struct {
	ID            string `json:"session_id"`
	TotalMessages int    `json:"total_messages"`
	Completed     int    `json:"completed"`
	Successful    int    `json:"successful"`
	Failed        int    `json:"failed"`
	Cancelled     bool   `json:"cancelled"`
	StartTime     int64  `json:"start_time"`
}

// String renders a one-line human-readable summary.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %d/%d sent, %d failed", s.ID, s.Successful, s.TotalMessages, s.Failed)
	if s.Cancelled {
		b.WriteString(" (cancelled)")
	}
	return b.String()
}
