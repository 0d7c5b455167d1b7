package pacing

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketUsage = []byte("usage")

const (
	dayKeyFormat  = "2006-01-02"
	hourKeyFormat = "2006-01-02-15"

	// Counters older than this are swept on every Record.
	statsRetention = 30 * 24 * time.Hour
)

// Stats tracks how many messages were sent per calendar day and hour,
// persisted across process restarts so daily/hourly caps survive a crash
// or an operator closing the tool mid-campaign.
type Stats struct {
	db     *bolt.DB
	counts map[string]int
}

// OpenStats opens (creating if needed) the usage counter store at path.
func OpenStats(path string) (*Stats, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	s := &Stats{
		db:     db,
		counts: make(map[string]int),
	}

	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketUsage)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			n, err := strconv.Atoi(string(v))
			if err != nil {
				return nil // skip unparsable entries
			}
			s.counts[string(k)] = n
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load usage counters: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Stats) Close() error {
	return s.db.Close()
}

// SentToday returns the number of messages recorded for now's calendar day.
func (s *Stats) SentToday(now time.Time) int {
	return s.counts[dayKey(now)]
}

// SentThisHour returns the number of messages recorded for now's hour.
func (s *Stats) SentThisHour(now time.Time) int {
	return s.counts[hourKey(now)]
}

// Record increments today's and this hour's counters and persists them.
// Old counters beyond the retention window are pruned in the same write.
func (s *Stats) Record(now time.Time) error {
	day := dayKey(now)
	hour := hourKey(now)
	s.counts[day]++
	s.counts[hour]++
	s.prune(now)

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketUsage)
		if bucket == nil {
			return fmt.Errorf("usage bucket missing")
		}
		if err := bucket.Put([]byte(day), []byte(strconv.Itoa(s.counts[day]))); err != nil {
			return err
		}
		if err := bucket.Put([]byte(hour), []byte(strconv.Itoa(s.counts[hour]))); err != nil {
			return err
		}

		// Drop expired keys from disk too.
		cutoffDay := now.Add(-statsRetention).Format(dayKeyFormat)
		c := bucket.Cursor()
		var stale [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if keyDate(string(k)) < cutoffDay {
				stale = append(stale, append([]byte{}, k...))
			}
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Stats) prune(now time.Time) {
	cutoff := now.Add(-statsRetention).Format(dayKeyFormat)
	for k := range s.counts {
		if keyDate(k) < cutoff {
			delete(s.counts, k)
		}
	}
}

func dayKey(t time.Time) string {
	return "day:" + t.Format(dayKeyFormat)
}

func hourKey(t time.Time) string {
	return "hour:" + t.Format(hourKeyFormat)
}

// keyDate extracts the YYYY-MM-DD portion of a counter key.
func keyDate(key string) string {
	i := strings.IndexByte(key, ':')
	date := key[i+1:]
	if len(date) > len(dayKeyFormat) {
		date = date[:len(dayKeyFormat)]
	}
	return date
}
