// Package dedup suppresses repeated syslog records inside a sliding time
// window, keyed by a fingerprint over (source IP, priority, message body).
package dedup

import (
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
)

const (
	DefaultWindow     = 10 * time.Minute
	DefaultMaxEntries = 100_000

	// sweepInterval paces the opportunistic full eviction pass. Freshness
	// never depends on it: Accept re-checks entry age on every hit.
	sweepInterval = time.Minute
)

type Config struct {
	// Window is how long a fingerprint suppresses re-occurrences,
	// measured from its first sighting.
	Window time.Duration `yaml:"window"`

	// MaxEntries caps the fingerprint map. When exceeded, expired entries
	// go first, then the oldest survivors.
	MaxEntries int `yaml:"max_entries"`
}

// Deduplicator is safe for concurrent use from all transports.
type Deduplicator struct {
	cfg Config
	clk clock.Clock

	mu        sync.Mutex
	seen      map[uint64]time.Time
	lastSweep time.Time
}

// New creates a deduplicator. A nil clock selects the wall clock; tests
// inject a mock.
func New(cfg Config, clk clock.Clock) *Deduplicator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Deduplicator{
		cfg:  cfg,
		clk:  clk,
		seen: make(map[uint64]time.Time),
	}
}

// Fingerprint digests the three fields that define duplicate identity.
// Timestamp and hostname are deliberately excluded so repeated alerts with
// drifting timestamps still collapse.
func Fingerprint(sourceIP string, priority int, message string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(sourceIP)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(strconv.Itoa(priority))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(message)
	return d.Sum64()
}

// Accept reports whether the record should be written. The first sighting
// of a fingerprint wins the whole window: later duplicates neither pass
// nor extend the suppression.
func (d *Deduplicator) Accept(sourceIP string, priority int, message string) bool {
	fp := Fingerprint(sourceIP, priority, message)
	now := d.clk.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastSweep) >= sweepInterval {
		d.evictExpired(now)
		d.lastSweep = now
	}

	if first, ok := d.seen[fp]; ok && now.Sub(first) < d.cfg.Window {
		return false
	}

	if len(d.seen) >= d.cfg.MaxEntries {
		d.evictExpired(now)
		for len(d.seen) >= d.cfg.MaxEntries {
			d.evictOldest()
		}
	}

	d.seen[fp] = now
	return true
}

// Len reports the current fingerprint count.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduplicator) evictExpired(now time.Time) {
	for fp, first := range d.seen {
		if now.Sub(first) >= d.cfg.Window {
			delete(d.seen, fp)
		}
	}
}

func (d *Deduplicator) evictOldest() {
	var (
		oldestFP uint64
		oldest   time.Time
		found    bool
	)
	for fp, first := range d.seen {
		if !found || first.Before(oldest) {
			oldestFP, oldest, found = fp, first, true
		}
	}
	if found {
		delete(d.seen, oldestFP)
	}
}
