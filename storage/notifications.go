package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// JobStatsListener observes job-count changes. It receives a fresh stats
// snapshot taken at delivery time; intermediate states between deliveries
// are not replayed.
type JobStatsListener func(*JobStats)

// MetadataListener observes metadata changes by record name.
type MetadataListener func(name string)

// Subscription is the scoped handle returned by listener registration.
// Cancel deregisters the listener; it is safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel deregisters the listener.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithRateLimit sets the job-stats delivery budget in events per second.
// Zero or negative removes the limit. The default is 1/s.
func WithRateLimit(eventsPerSecond float64) NotifierOption {
	return func(n *Notifier) {
		if eventsPerSecond <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), 1)
	}
}

// WithNotifierLogger sets the logger used for delivery failures.
func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = l }
}

// statsDeliveryTimeout bounds the stats fetch done for one delivery.
const statsDeliveryTimeout = 5 * time.Second

// Notifier fans storage-mutation events out to in-process listeners.
//
// Job-stats deliveries are rate-limited and coalesced: when the budget is
// exhausted the next delivery is scheduled for the next token and reflects
// whatever the store holds at that moment. Delivery happens on a separate
// goroutine and never blocks or fails the storage operation that triggered
// it. Backends embed a Notifier to satisfy the ChangeListeners interface.
type Notifier struct {
	stats   func(context.Context) (*JobStats, error)
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	statsLs map[uint64]JobStatsListener
	metaLs  map[uint64]MetadataListener
	nextID  uint64
	pending bool
	timer   *time.Timer
	closed  bool
}

// NewNotifier creates a Notifier that fetches delivery snapshots through
// stats. The default budget is one job-stats delivery per second.
func NewNotifier(stats func(context.Context) (*JobStats, error), opts ...NotifierOption) *Notifier {
	n := &Notifier{
		stats:   stats,
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		statsLs: make(map[uint64]JobStatsListener),
		metaLs:  make(map[uint64]MetadataListener),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// OnJobStatsChange registers a job-stats listener.
func (n *Notifier) OnJobStatsChange(l JobStatsListener) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.statsLs[id] = l
	return &Subscription{cancel: func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.statsLs, id)
	}}
}

// OnMetadataChange registers a metadata listener.
func (n *Notifier) OnMetadataChange(l MetadataListener) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.metaLs[id] = l
	return &Subscription{cancel: func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.metaLs, id)
	}}
}

// JobStatsChanged signals that a mutation may have changed job counts.
func (n *Notifier) JobStatsChanged() {
	n.mu.Lock()
	if n.closed || len(n.statsLs) == 0 {
		n.mu.Unlock()
		return
	}
	if n.limiter.Allow() {
		n.mu.Unlock()
		go n.deliverStats()
		return
	}
	if !n.pending {
		n.pending = true
		delay := n.limiter.Reserve().Delay()
		n.timer = time.AfterFunc(delay, n.flush)
	}
	n.mu.Unlock()
}

// JobStatsChangedIf is JobStatsChanged gated on cond.
func (n *Notifier) JobStatsChangedIf(cond bool) {
	if cond {
		n.JobStatsChanged()
	}
}

// MetadataChanged signals that metadata records with the given name changed.
func (n *Notifier) MetadataChanged(name string) {
	n.mu.Lock()
	if n.closed || len(n.metaLs) == 0 {
		n.mu.Unlock()
		return
	}
	ls := make([]MetadataListener, 0, len(n.metaLs))
	for _, l := range n.metaLs {
		ls = append(ls, l)
	}
	n.mu.Unlock()

	go func() {
		defer n.recoverDelivery()
		for _, l := range ls {
			l(name)
		}
	}()
}

// Close drops all listeners and cancels any scheduled delivery.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.pending = false
	if n.timer != nil {
		n.timer.Stop()
	}
	n.statsLs = map[uint64]JobStatsListener{}
	n.metaLs = map[uint64]MetadataListener{}
}

func (n *Notifier) flush() {
	n.mu.Lock()
	if n.closed || !n.pending {
		n.mu.Unlock()
		return
	}
	n.pending = false
	n.mu.Unlock()
	n.deliverStats()
}

func (n *Notifier) deliverStats() {
	defer n.recoverDelivery()

	ctx, cancel := context.WithTimeout(context.Background(), statsDeliveryTimeout)
	defer cancel()

	st, err := n.stats(ctx)
	if err != nil {
		n.logger.Warn("job stats notification skipped", "error", err)
		return
	}

	n.mu.Lock()
	ls := make([]JobStatsListener, 0, len(n.statsLs))
	for _, l := range n.statsLs {
		ls = append(ls, l)
	}
	n.mu.Unlock()

	for _, l := range ls {
		l(st)
	}
}

func (n *Notifier) recoverDelivery() {
	if r := recover(); r != nil {
		n.logger.Error("change listener panicked", "panic", r)
	}
}
