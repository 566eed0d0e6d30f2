// Package sync watches folders for new envelopes by polling them.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/logging"
	"github.com/nhle/mailctl/internal/model"
)

// SyncState represents the current state of a folder watch.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the state of a single watch.
type SyncStatus struct {
	Account  string
	Folder   string
	State    SyncState
	LastSync time.Time
	Error    error
}

// Result is emitted after every poll of a watch.
type Result struct {
	Account   string
	Folder    string
	Envelopes model.Envelopes

	// New holds the envelopes whose alias was absent from the previous
	// poll. It is empty on the first poll.
	New model.Envelopes

	Error error

	// AuthError is set when Error is an authentication failure; retrying
	// will not help until credentials are fixed.
	AuthError bool
}

// Lister is the part of an account backend the poller needs.
type Lister interface {
	ListEnvelopes(ctx context.Context, folder string, page, pageSize int) (model.Envelopes, error)
}

// Watch describes one polled folder.
type Watch struct {
	Account  string
	Folder   string
	Interval time.Duration
	PageSize int
}

// DefaultInterval is used when a watch has no interval.
const DefaultInterval = 120 * time.Second

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

type watchKey struct {
	account string
	folder  string
}

// watchEntry holds a registered watch and its lister.
type watchEntry struct {
	lister  Lister
	watch   Watch
	trigger chan struct{}
	seen    map[string]bool
	primed  bool
}

// Poller orchestrates background polling of registered watches.
type Poller struct {
	entries  []*watchEntry
	statuses map[watchKey]*SyncStatus
	resultCh chan Result
	stopCh   chan struct{}
	wg       gosync.WaitGroup
	mu       gosync.Mutex
	running  bool
	stopped  bool
	logger   *slog.Logger
}

// New creates a new Poller.
func New(logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{
		statuses: make(map[watchKey]*SyncStatus),
		resultCh: make(chan Result, 16),
		stopCh:   make(chan struct{}),
		logger:   logging.WithComponent(logger, "poller"),
	}
}

// Register adds a watch. It must be called before Start.
func (p *Poller) Register(lister Lister, w Watch) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w.Interval <= 0 {
		w.Interval = DefaultInterval
	}
	p.entries = append(p.entries, &watchEntry{
		lister:  lister,
		watch:   w,
		trigger: make(chan struct{}, 1),
		seen:    make(map[string]bool),
	})
	p.statuses[watchKey{w.Account, w.Folder}] = &SyncStatus{
		Account: w.Account,
		Folder:  w.Folder,
		State:   SyncIdle,
	}
}

// Start launches one polling goroutine per watch and returns the result
// channel. The channel is closed once every goroutine has stopped, either
// through Stop or because ctx ended. A Poller runs once: Start after Stop
// only returns the channel.
func (p *Poller) Start(ctx context.Context) <-chan Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return p.resultCh
	}
	p.running = true

	for _, entry := range p.entries {
		p.wg.Add(1)
		go p.pollWatch(ctx, entry)
	}
	go func() {
		p.wg.Wait()
		close(p.resultCh)
	}()

	return p.resultCh
}

// Stop halts all polling goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
	p.stopped = true
}

// RefreshAll triggers an immediate poll of every watch.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.entries {
		select {
		case entry.trigger <- struct{}{}:
		default:
			// A refresh is already pending
		}
	}
}

// Statuses returns the current status of every watch.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

// pollWatch runs the polling loop for a single watch.
func (p *Poller) pollWatch(ctx context.Context, entry *watchEntry) {
	defer p.wg.Done()

	ticker := time.NewTicker(entry.watch.Interval)
	defer ticker.Stop()

	// Do an initial fetch immediately
	if !p.fetch(ctx, entry) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
		case <-entry.trigger:
		}
		if !p.fetch(ctx, entry) {
			return
		}
	}
}

// fetch polls once and publishes the result. It returns false when the
// poller is shutting down.
func (p *Poller) fetch(ctx context.Context, entry *watchEntry) bool {
	w := entry.watch
	key := watchKey{w.Account, w.Folder}
	p.setStatus(key, SyncRunning, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	envs, err := entry.lister.ListEnvelopes(fetchCtx, w.Folder, 1, w.PageSize)
	if err != nil {
		p.setStatus(key, SyncError, err)
		p.logger.Warn("poll failed", "account", w.Account, "folder", w.Folder, "error", err)
		return p.sendResult(ctx, Result{
			Account:   w.Account,
			Folder:    w.Folder,
			Error:     err,
			AuthError: backend.IsAuthError(err),
		})
	}

	// Detect new envelopes by checking which aliases were not seen before.
	var fresh model.Envelopes
	current := make(map[string]bool, len(envs))
	for _, env := range envs {
		current[env.ID] = true
		if entry.primed && !entry.seen[env.ID] {
			fresh = append(fresh, env)
		}
	}
	entry.seen = current
	entry.primed = true

	p.setStatus(key, SyncIdle, nil)
	if len(fresh) > 0 {
		p.logger.Info("new envelopes", "account", w.Account, "folder", w.Folder, "count", len(fresh))
	}
	return p.sendResult(ctx, Result{
		Account:   w.Account,
		Folder:    w.Folder,
		Envelopes: envs,
		New:       fresh,
	})
}

// setStatus updates the status of a watch.
func (p *Poller) setStatus(key watchKey, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[key]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}

// sendResult delivers a result, blocking until it is consumed or the
// poller stops.
func (p *Poller) sendResult(ctx context.Context, r Result) bool {
	select {
	case p.resultCh <- r:
		return true
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
