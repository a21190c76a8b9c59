package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mailmatrix/backend/internal/store"
)

// Scheduler fires the ingestion pipeline for every stored credential at
// a fixed cadence. Users within a tick run concurrently up to the
// worker bound; the same user never runs twice at once, whether from
// overlapping ticks or from the synchronous first-sync-on-login path.
type Scheduler struct {
	store       *store.Store
	pipeline    *Pipeline
	interval    time.Duration
	userTimeout time.Duration
	workers     int

	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
	ticking  sync.Mutex // skip a tick while the previous one still runs
	inFlight sync.Map   // userEmail -> in-progress marker
}

// NewScheduler wires a scheduler. Zero values fall back to a 60s
// interval, 30s per-user timeout and 4 workers.
func NewScheduler(st *store.Store, pipeline *Pipeline, interval, userTimeout time.Duration, workers int) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if userTimeout <= 0 {
		userTimeout = 30 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		store:       st,
		pipeline:    pipeline,
		interval:    interval,
		userTimeout: userTimeout,
		workers:     workers,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the tick loop in the background. A stopped scheduler
// can be started again.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	// Fresh channel per run; the previous Stop closed the old one.
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	log.Printf("scheduler: starting with interval %v", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunTick(context.Background())
			case <-stop:
				log.Printf("scheduler: stopping")
				return
			}
		}
	}()
}

// Stop halts the tick loop. In-flight user passes finish on their own
// per-user deadlines.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

// RunTick executes one tick synchronously: every stored credential gets
// one ingestion pass. Exported so tests (and tools) can drive ticks
// deterministically. One user's failure never affects the others.
func (s *Scheduler) RunTick(ctx context.Context) {
	if !s.ticking.TryLock() {
		log.Printf("scheduler: previous tick still running, skipping")
		return
	}
	defer s.ticking.Unlock()

	creds, err := s.store.ListCredentials(ctx)
	if err != nil {
		log.Printf("scheduler: list credentials: %v", err)
		return
	}

	if len(creds) == 0 {
		return
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for _, cred := range creds {
		wg.Add(1)
		sem <- struct{}{}

		go func(cred store.Credential) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.RunUser(ctx, cred); err != nil {
				log.Printf("scheduler: ingest for %s: %v", cred.UserEmail, err)
			}
		}(cred)
	}

	wg.Wait()
}

// RunUser runs one ingestion pass for one credential under the per-user
// lock and timeout. The OAuth callback calls this for the synchronous
// first sync after login; ticks call it for every stored credential.
func (s *Scheduler) RunUser(ctx context.Context, cred store.Credential) error {
	if _, loaded := s.inFlight.LoadOrStore(cred.UserEmail, struct{}{}); loaded {
		log.Printf("scheduler: pass for %s already running, skipping", cred.UserEmail)
		return nil
	}
	defer s.inFlight.Delete(cred.UserEmail)

	userCtx, cancel := context.WithTimeout(ctx, s.userTimeout)
	defer cancel()

	return s.pipeline.IngestOnce(userCtx, cred)
}
