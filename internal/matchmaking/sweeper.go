package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweeperConfig 스윕 주기 설정
type SweeperConfig struct {
	MatchInterval      time.Duration
	StatusInterval     time.Duration
	MaxMatchesPerSweep int
}

// Sweeper 주기적 매칭 드라이버. Fires a matching pass every MatchInterval and a
// queue status log every StatusInterval; the status tick also refreshes queue
// claims. A failing or panicking tick is logged and the next tick runs as usual.
type Sweeper struct {
	matchmaker *Matchmaker
	cfg        SweeperConfig
	logger     *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewSweeper 스윕 드라이버 생성
func NewSweeper(matchmaker *Matchmaker, cfg SweeperConfig, logger *zap.Logger) (*Sweeper, error) {
	if matchmaker == nil {
		return nil, fmt.Errorf("sweeper requires a matchmaker")
	}
	if cfg.MatchInterval <= 0 || cfg.StatusInterval <= 0 {
		return nil, fmt.Errorf("sweeper intervals must be positive: match=%v status=%v",
			cfg.MatchInterval, cfg.StatusInterval)
	}
	if cfg.MaxMatchesPerSweep <= 0 {
		cfg.MaxMatchesPerSweep = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		matchmaker: matchmaker,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Start 스윕 루프 시작
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("Starting match sweeper",
		zap.Duration("matchInterval", s.cfg.MatchInterval),
		zap.Duration("statusInterval", s.cfg.StatusInterval),
		zap.Int("maxMatchesPerSweep", s.cfg.MaxMatchesPerSweep))

	s.wg.Add(1)
	go s.loop(s.stopChan)
}

// Stop stops ticking and waits for the in-flight tick to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.logger.Info("Stopping match sweeper")
	s.wg.Wait()
	s.logger.Info("Match sweeper stopped")
}

func (s *Sweeper) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	matchTicker := time.NewTicker(s.cfg.MatchInterval)
	defer matchTicker.Stop()
	statusTicker := time.NewTicker(s.cfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-matchTicker.C:
			s.Tick()
		case <-statusTicker.C:
			s.LogStatus()
			s.RefreshClaims()
		case <-stop:
			return
		}
	}
}

// Tick runs one sweep. Errors and panics are logged, never propagated.
func (s *Sweeper) Tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sweep tick panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MatchInterval)
	defer cancel()

	matched, err := s.matchmaker.RunSweep(ctx, s.cfg.MaxMatchesPerSweep)
	if err != nil {
		s.logger.Error("Sweep finished with errors",
			zap.Int("matched", matched),
			zap.Error(err))
		return
	}
	if matched > 0 {
		s.logger.Info("Sweep completed", zap.Int("matched", matched))
	} else {
		s.logger.Debug("Sweep found no match", zap.Int("queueSize", s.matchmaker.QueueSize()))
	}
}

// RefreshClaims keeps the queue claims of waiting players alive.
func (s *Sweeper) RefreshClaims() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Claim refresh panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StatusInterval)
	defer cancel()

	if err := s.matchmaker.RefreshClaims(ctx); err != nil {
		s.logger.Warn("Failed to refresh queue claims", zap.Error(err))
	}
}

// LogStatus 큐 상태 로그
func (s *Sweeper) LogStatus() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Queue status tick panicked", zap.Any("panic", r))
		}
	}()

	snapshot := s.matchmaker.QueueSnapshot()
	fields := []zap.Field{zap.Int("queueSize", len(snapshot))}
	if len(snapshot) > 0 {
		now := s.matchmaker.Now()
		oldest := snapshot[0]
		for _, p := range snapshot[1:] {
			if p.JoinedAt.Before(oldest.JoinedAt) {
				oldest = p
			}
		}
		fields = append(fields,
			zap.String("topPriorityPlayer", snapshot[0].ID),
			zap.Float64("topPriority", snapshot[0].Priority(now)),
			zap.Duration("longestWait", oldest.ElapsedWait(now)))
	}
	s.logger.Info("Matchmaking queue status", fields...)
}
