// Package ledger is the client-held quarantine ledger: a log of successful
// sends plus a quarantine-until marker. It is advisory only; anyone holding
// the storage can reset it.
package ledger

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/storage"
)

const (
	DefaultWindow     = 10 * time.Minute
	DefaultRetention  = 2 * time.Hour
	DefaultQuarantine = time.Hour
	DefaultThreshold  = 3
	DefaultKeyPrefix  = "asanrooz"
)

type Ledger struct {
	store  storage.Store
	now    func() time.Time
	logger *slog.Logger

	sendsKey      string
	quarantineKey string

	window     time.Duration
	retention  time.Duration
	quarantine time.Duration
	threshold  int
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithKeyPrefix namespaces the two storage keys.
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			return
		}
		l.sendsKey = prefix + "_contact_sends_v1"
		l.quarantineKey = prefix + "_contact_quarantine_until_v1"
	}
}

func New(store storage.Store, opts ...Option) *Ledger {
	if store == nil {
		store = storage.Unavailable{}
	}
	l := &Ledger{
		store:      store,
		now:        time.Now,
		logger:     logging.Discard(),
		window:     DefaultWindow,
		retention:  DefaultRetention,
		quarantine: DefaultQuarantine,
		threshold:  DefaultThreshold,
	}
	WithKeyPrefix(DefaultKeyPrefix)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsQuarantined reports whether the marker lies in the future. Past markers
// are inactive and left in place.
func (l *Ledger) IsQuarantined() bool {
	until := l.quarantineUntil()
	return until > 0 && until > l.nowMs()
}

// MinutesRemaining rounds the remaining quarantine up to whole minutes and
// never reports less than one.
func (l *Ledger) MinutesRemaining() int {
	diff := l.quarantineUntil() - l.nowMs()
	if diff < 0 {
		diff = 0
	}
	mins := int(math.Ceil(float64(diff) / float64(time.Minute.Milliseconds())))
	return max(1, mins)
}

// RecordSuccess appends now, prunes expired entries and starts or extends the
// quarantine once the trailing window holds threshold sends.
func (l *Ledger) RecordSuccess() {
	t := l.nowMs()
	retention := l.retention.Milliseconds()
	window := l.window.Milliseconds()

	sends := lo.Filter(l.readSends(), func(x int64, _ int) bool {
		return t-x <= retention
	})
	sends = append(sends, t)
	l.writeSends(sends)

	recent := lo.CountBy(sends, func(x int64) bool {
		return t-x <= window
	})
	if recent < l.threshold {
		return
	}

	until := t + l.quarantine.Milliseconds()
	if current := l.quarantineUntil(); current > until {
		until = current
	}
	if err := l.store.Set(l.quarantineKey, strconv.FormatInt(until, 10)); err != nil {
		l.logger.Debug("ledger: write quarantine failed", "err", err)
		return
	}
	l.logger.Info("ledger: quarantine started", "recent_sends", recent, "until", time.UnixMilli(until))
}

// Snapshot is a read-only view for status reporting.
type Snapshot struct {
	Sends       []time.Time
	RecentSends int
	Until       time.Time
	Quarantined bool
	MinutesLeft int
}

func (l *Ledger) Snapshot() Snapshot {
	t := l.nowMs()
	sends := lo.Filter(l.readSends(), func(x int64, _ int) bool {
		return t-x <= l.retention.Milliseconds()
	})

	s := Snapshot{
		Sends: lo.Map(sends, func(x int64, _ int) time.Time { return time.UnixMilli(x) }),
		RecentSends: lo.CountBy(sends, func(x int64) bool {
			return t-x <= l.window.Milliseconds()
		}),
		Quarantined: l.IsQuarantined(),
	}
	if until := l.quarantineUntil(); until > 0 {
		s.Until = time.UnixMilli(until)
	}
	if s.Quarantined {
		s.MinutesLeft = l.MinutesRemaining()
	}
	return s
}

// Reset drops both keys.
func (l *Ledger) Reset() error {
	if err := l.store.Delete(l.sendsKey); err != nil {
		return err
	}
	return l.store.Delete(l.quarantineKey)
}

func (l *Ledger) nowMs() int64 {
	return l.now().UnixMilli()
}

// readSends treats missing, malformed or unreadable state as no record.
func (l *Ledger) readSends() []int64 {
	raw, ok, err := l.store.Get(l.sendsKey)
	if err != nil {
		l.logger.Debug("ledger: read sends failed", "err", err)
		return nil
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}

	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		l.logger.Debug("ledger: malformed sends", "err", err)
		return nil
	}
	return lo.FilterMap(items, func(item any, _ int) (int64, bool) {
		n, ok := item.(float64)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	})
}

func (l *Ledger) writeSends(sends []int64) {
	data, err := json.Marshal(sends)
	if err != nil {
		return
	}
	if err := l.store.Set(l.sendsKey, string(data)); err != nil {
		l.logger.Debug("ledger: write sends failed", "err", err)
	}
}

func (l *Ledger) quarantineUntil() int64 {
	raw, ok, err := l.store.Get(l.quarantineKey)
	if err != nil {
		l.logger.Debug("ledger: read quarantine failed", "err", err)
		return 0
	}
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(v)
}
