package service

import (
	"context"
	"sync"
	"time"

	"github.com/mkravets/notesync/internal/logger"
)

// Scheduler decides when a sync attempt starts: on a fixed interval, on an
// offline-to-online transition, or after a debounced burst of local edits.
// Every trigger funnels into the coordinator's RequestAutoSync; rejecting
// overlapping runs is the coordinator's job, not the scheduler's.
type Scheduler struct {
	coordinator *Coordinator
	logger      *logger.Logger

	changeCh   chan struct{}
	onlineCh   chan bool
	intervalCh chan time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(coordinator *Coordinator, log *logger.Logger) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		logger:      log,
		changeCh:    make(chan struct{}, 1),
		onlineCh:    make(chan bool, 1),
		intervalCh:  make(chan time.Duration, 1),
	}
}

// Start stops any previously running loop and launches a fresh one with the
// coordinator's current configuration. The loop exits when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.Stop()

	s.mu.Lock()
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	cfg := s.coordinator.Config()
	go s.loop(loopCtx, cfg.SyncInterval, cfg.DebounceInterval)
}

// Stop signals the loop to exit and blocks until it has fully terminated.
// Safe to call when the scheduler is not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// NotifyChange arms the debounce timer. Called from the change log's append
// hook; never blocks, bursts collapse into one pending signal.
func (s *Scheduler) NotifyChange() {
	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}

// SetOnline reports a connectivity transition. An offline-to-online edge
// triggers an immediate sync attempt.
func (s *Scheduler) SetOnline(online bool) {
	select {
	case s.onlineCh <- online:
	default:
		// A rapid flap left an unconsumed value; the latest state wins.
		select {
		case <-s.onlineCh:
		default:
		}
		s.onlineCh <- online
	}
}

// UpdateInterval retunes the periodic trigger without restarting the loop.
// Zero disables periodic syncing.
func (s *Scheduler) UpdateInterval(interval time.Duration) {
	select {
	case s.intervalCh <- interval:
	default:
		select {
		case <-s.intervalCh:
		default:
		}
		s.intervalCh <- interval
	}
}

func (s *Scheduler) loop(ctx context.Context, interval, debounce time.Duration) {
	defer s.wg.Done()

	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	// With a zero interval the ticker channel stays nil and the periodic
	// case never fires.
	var tickCh <-chan time.Time
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		tickCh = ticker.C
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	debounceTimer := time.NewTimer(debounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()

	// The engine may start offline; seed the edge detector from the
	// coordinator so the first transition to online still triggers.
	online := s.coordinator.Status().IsOnline

	for {
		select {
		case <-ctx.Done():
			return

		case <-tickCh:
			s.logger.Debug().Msg("periodic sync trigger")
			s.coordinator.RequestAutoSync(ctx)

		case <-s.changeCh:
			// Restart the quiet period; only the last edit of a burst
			// schedules the run.
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(debounce)

		case <-debounceTimer.C:
			s.logger.Debug().Msg("debounced change trigger")
			s.coordinator.RequestAutoSync(ctx)

		case nowOnline := <-s.onlineCh:
			wasOnline := online
			online = nowOnline
			s.coordinator.SetOnline(nowOnline)
			if nowOnline && !wasOnline {
				s.logger.Debug().Msg("online transition trigger")
				s.coordinator.RequestAutoSync(ctx)
			}

		case newInterval := <-s.intervalCh:
			if ticker != nil {
				ticker.Stop()
				ticker = nil
				tickCh = nil
			}
			if newInterval > 0 {
				ticker = time.NewTicker(newInterval)
				tickCh = ticker.C
			}
		}
	}
}
