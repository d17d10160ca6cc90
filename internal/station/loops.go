package station

import (
	"context"
	"time"

	"github.com/jamesprial/ecomonitor/internal/memory"
)

// Start launches the collection and supervision loops. The loops keep the
// values carried by ctx but not its cancellation: only Stop ends them. On a
// running System, Start logs a warning and returns ErrAlreadyRunning. While a
// loop abandoned by an earlier Stop is still alive, Start refuses with
// ErrLoopsStillRunning.
func (s *System) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.running.Load() {
		s.logger.Warn("start ignored: system already running")
		return ErrAlreadyRunning
	}
	if stale := s.staleLoops(); len(stale) > 0 {
		s.logger.Error("start refused: loops from the previous run have not exited", "loops", stale)
		return ErrLoopsStillRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.collectDone = make(chan struct{})
	s.memoryDone = make(chan struct{})

	s.timesMu.Lock()
	s.startedAt = s.now()
	s.stoppedAt = time.Time{}
	s.baseReadings = s.totalReadings.Load()
	s.timesMu.Unlock()

	s.running.Store(true)
	go s.runCollection(loopCtx, s.collectDone)
	go s.runSupervision(loopCtx, s.memoryDone)

	s.logger.Info("monitoring system started",
		"sensors", s.SensorCount(),
		"collection_interval", s.cfg.CollectionInterval,
		"memory_interval", s.cfg.MemoryInterval)
	return nil
}

// Stop signals both loops and waits for each up to its own timeout. A loop
// that does not confirm exit in time is logged and left behind. Stop returns
// the statistics of the run; on a stopped System it only logs a warning and
// returns statistics with Stopped false.
func (s *System) Stop() FinalStats {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.running.CompareAndSwap(true, false) {
		s.logger.Warn("stop ignored: system not running")
		return s.finalStats(false)
	}

	s.cancel()
	s.await("collection", s.collectDone, s.cfg.CollectionStopTimeout)
	s.await("memory", s.memoryDone, s.cfg.MemoryStopTimeout)

	s.timesMu.Lock()
	s.stoppedAt = s.now()
	s.timesMu.Unlock()

	stats := s.finalStats(true)
	s.logger.Info("monitoring system stopped",
		"elapsed", stats.Elapsed.Round(time.Millisecond),
		"readings", stats.TotalReadings,
		"alerts", stats.AlertsGenerated,
		"reclamations", stats.Reclamations,
		"readings_per_second", stats.ReadingsPerSecond)
	return stats
}

// staleLoops names the loops of the previous run that have not closed their
// done channel.
func (s *System) staleLoops() []string {
	var stale []string
	if alive(s.collectDone) {
		stale = append(stale, "collection")
	}
	if alive(s.memoryDone) {
		stale = append(stale, "memory")
	}
	return stale
}

func alive(done <-chan struct{}) bool {
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// await waits for done up to timeout.
func (s *System) await(loop string, done <-chan struct{}, timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		s.logger.Warn("loop did not exit within timeout; Start is refused until it does",
			"loop", loop, "timeout", timeout)
	}
}

func (s *System) runCollection(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.CollectionInterval)
	defer ticker.Stop()

	for {
		s.CollectOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Debug("collection loop exiting")
			return
		case <-ticker.C:
		}
	}
}

func (s *System) runSupervision(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.MemoryInterval)
	defer ticker.Stop()

	for {
		s.SuperviseOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Debug("memory loop exiting")
			return
		case <-ticker.C:
		}
	}
}

// CollectOnce runs one collection tick: every active sensor is sampled in
// registration order, its reading stored, and an alert raised when the value
// is out of range. A panic while handling one sensor is logged and the tick
// moves on to the next sensor.
func (s *System) CollectOnce(ctx context.Context) {
	for _, e := range s.snapshot() {
		if ctx.Err() != nil {
			return
		}
		s.collect(ctx, e)
	}
}

func (s *System) collect(ctx context.Context, e *entry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sensor collection failed", "sensor_id", e.sensor.ID(), "panic", r)
		}
	}()

	if !e.sensor.IsActive() {
		return
	}
	v, ok := e.sensor.Sample(ctx)
	if !ok {
		return
	}

	s.newReading(e, v)
	total := s.totalReadings.Add(1)
	if s.cfg.ProgressEvery > 0 && total%s.cfg.ProgressEvery == 0 {
		s.logger.Info("readings collected", "total", total)
	}

	if !e.sensor.IsNormal(v) {
		s.raiseAlert(e.sensor, v)
	}
}

// SuperviseOnce runs one supervision tick: sample memory and apply the
// reaction for its pressure band. It may block for the warning or critical
// pause; cancelling ctx cuts the pause short.
func (s *System) SuperviseOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("memory supervision failed", "panic", r)
		}
	}()

	info := s.monitor.Sample(ctx)
	s.metrics.observeMemory(info)

	switch info.Status {
	case memory.StatusCritical:
		s.handleCritical(ctx, info)
	case memory.StatusWarning:
		s.handleWarning(ctx, info)
	default:
		s.heartbeat(info)
	}
}

func (s *System) heartbeat(info memory.StatusInfo) {
	if s.cfg.HeartbeatInterval <= 0 {
		return
	}
	now := s.now()
	last := s.lastHeartbeat.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < s.cfg.HeartbeatInterval {
		return
	}
	s.lastHeartbeat.Store(now.UnixNano())
	s.logger.Info("memory ok", "usage", info.String())
}

// handleWarning pauses, then trims the alert log when it has grown past the
// warning limit.
func (s *System) handleWarning(ctx context.Context, info memory.StatusInfo) {
	s.logger.Warn("memory pressure warning", "usage", info.String())
	if !sleepCtx(ctx, s.cfg.WarningPause) {
		return
	}
	if s.alerts.len() <= s.cfg.WarningAlertLimit {
		return
	}
	dropped := s.alerts.retainNewest(s.cfg.WarningAlertRetain)
	s.logger.Info("alert log trimmed under memory pressure",
		"dropped", dropped, "retained", s.cfg.WarningAlertRetain)
}

// handleCritical requests reclamation, sheds the configured sensor types,
// clears the alert log, pauses, and then reactivates every sensor. The
// reactivation does not depend on a fresh sample: if pressure persists the
// next tick sheds again.
func (s *System) handleCritical(ctx context.Context, info memory.StatusInfo) {
	s.logger.Error("critical memory pressure", "usage", info.String())

	s.monitor.RequestReclamation(ctx)

	var shed []int
	for _, e := range s.snapshot() {
		if s.shed.Sheds(e.sensor.Type()) && e.sensor.IsActive() {
			e.sensor.SetActive(false)
			shed = append(shed, e.sensor.ID())
		}
	}
	s.shedEvents.Add(int64(len(shed)))
	cleared := s.alerts.clear()
	s.logger.Warn("sensors shed and alert log cleared", "shed", shed, "alerts_cleared", cleared)

	sleepCtx(ctx, s.cfg.CriticalPause)

	n := 0
	for _, e := range s.snapshot() {
		if !e.sensor.IsActive() {
			e.sensor.SetActive(true)
			n++
		}
	}
	s.logger.Info("sensors reactivated", "count", n)
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
