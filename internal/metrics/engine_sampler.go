package metrics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// EngineSampler periodically samples CPU and resident memory of the engine
// processes and exposes them as gauges labelled by engine name.
type EngineSampler struct {
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
}

// NewEngineSampler creates a sampler. A non-positive interval defaults to 5s.
func NewEngineSampler(interval time.Duration) *EngineSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &EngineSampler{
		interval: interval,
		stopCh:   make(chan struct{}),
		cpuPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "duelr",
			Subsystem: "engine",
			Name:      "cpu_percent",
			Help:      "Engine process CPU usage percent.",
		}, []string{"engine"}),
		memoryMB: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "duelr",
			Subsystem: "engine",
			Name:      "memory_mb",
			Help:      "Engine process resident memory in MB.",
		}, []string{"engine"}),
		numThreads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "duelr",
			Subsystem: "engine",
			Name:      "num_threads",
			Help:      "Engine process thread count.",
		}, []string{"engine"}),
	}
}

// Register registers the sampler gauges.
func (s *EngineSampler) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.cpuPercent, s.memoryMB, s.numThreads} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start samples pids() every interval until ctx is done or Stop is called.
func (s *EngineSampler) Start(ctx context.Context, pids func() map[string]int32) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Sample(pids())
			}
		}
	}()
}

// Stop halts sampling and waits for the sampler goroutine.
func (s *EngineSampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Sample records one reading per engine. Engines that cannot be inspected
// have their series removed.
func (s *EngineSampler) Sample(pids map[string]int32) {
	for name, pid := range pids {
		p, err := process.NewProcess(pid)
		if err != nil {
			s.forget(name)
			continue
		}
		if cpu, err := p.CPUPercent(); err == nil {
			s.cpuPercent.WithLabelValues(name).Set(cpu)
		} else {
			slog.Debug("Failed to get CPU percent", "engine", name, "pid", pid, "error", err)
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			s.memoryMB.WithLabelValues(name).Set(float64(mem.RSS) / 1024 / 1024)
		}
		if n, err := p.NumThreads(); err == nil {
			s.numThreads.WithLabelValues(name).Set(float64(n))
		}
	}
}

func (s *EngineSampler) forget(name string) {
	s.cpuPercent.DeleteLabelValues(name)
	s.memoryMB.DeleteLabelValues(name)
	s.numThreads.DeleteLabelValues(name)
}
