package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// MetricsManager is a singleton that owns the host metrics registry.
// Names avoid the go_/process_ prefixes so the registry can be gathered
// alongside the default one without collisions.
type MetricsManager struct {
	systemCPUUsage    *prometheus.GaugeVec
	systemMemoryUsage *prometheus.GaugeVec
	storeVolumeUsage  *prometheus.GaugeVec

	heapAlloc  prometheus.Gauge
	heapSys    prometheus.Gauge
	gcPauseNs  prometheus.Histogram
	gcFraction prometheus.Gauge

	// Registry for manual control
	registry *prometheus.Registry

	storePath string

	initialized bool
	mu          sync.RWMutex
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton instance of MetricsManager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = &MetricsManager{
			registry: prometheus.NewRegistry(),
		}
	})
	return instance
}

// InitializeMetrics initializes all host metrics (thread-safe)
func (mm *MetricsManager) InitializeMetrics() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.initialized {
		return
	}

	mm.systemCPUUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bigfoot_system_cpu_usage_percent",
			Help: "Current CPU usage percentage",
		},
		[]string{"core"},
	)

	mm.systemMemoryUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bigfoot_system_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
		[]string{"type"},
	)

	mm.storeVolumeUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bigfoot_store_volume_bytes",
			Help: "Usage of the filesystem holding the document store",
		},
		[]string{"type"},
	)

	mm.heapAlloc = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bigfoot_heap_alloc_bytes",
			Help: "Heap memory usage in bytes",
		},
	)

	mm.heapSys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bigfoot_heap_sys_bytes",
			Help: "Heap memory reserved in bytes",
		},
	)

	mm.gcPauseNs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bigfoot_gc_pause_nanoseconds",
			Help:    "GC pause time in nanoseconds",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 20),
		},
	)

	mm.gcFraction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bigfoot_gc_cpu_fraction",
			Help: "Fraction of CPU time used by GC",
		},
	)

	mm.registry.MustRegister(
		mm.systemCPUUsage,
		mm.systemMemoryUsage,
		mm.storeVolumeUsage,
		mm.heapAlloc,
		mm.heapSys,
		mm.gcPauseNs,
		mm.gcFraction,
	)

	mm.initialized = true
}

// SetStorePath selects the path whose filesystem usage is reported.
func (mm *MetricsManager) SetStorePath(path string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.storePath = path
}

// StartSystemMetrics collects host metrics every interval until ctx is done.
func StartSystemMetrics(ctx context.Context, interval time.Duration, storePath string) {
	mm := GetInstance()
	mm.InitializeMetrics()
	mm.SetStorePath(storePath)

	log.Info().Dur("interval", interval).Msg("Starting system metrics collection")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Debug().Msg("System metrics collection stopped")
				return
			case <-ticker.C:
				mm.Collect()
			}
		}
	}()
}

// Collect takes one sample of every host metric.
func (mm *MetricsManager) Collect() {
	mm.collectSystemMetrics()
	mm.collectGoRuntimeMetrics()
}

// collectSystemMetrics collects system-level metrics
func (mm *MetricsManager) collectSystemMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	if cpuPercentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range cpuPercentages {
			mm.systemCPUUsage.WithLabelValues(fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	}

	if vmstat, err := mem.VirtualMemory(); err == nil {
		mm.systemMemoryUsage.WithLabelValues("total").Set(float64(vmstat.Total))
		mm.systemMemoryUsage.WithLabelValues("available").Set(float64(vmstat.Available))
		mm.systemMemoryUsage.WithLabelValues("used").Set(float64(vmstat.Used))
		mm.systemMemoryUsage.WithLabelValues("free").Set(float64(vmstat.Free))
	}

	if mm.storePath != "" {
		if usage, err := disk.Usage(mm.storePath); err == nil {
			mm.storeVolumeUsage.WithLabelValues("total").Set(float64(usage.Total))
			mm.storeVolumeUsage.WithLabelValues("used").Set(float64(usage.Used))
			mm.storeVolumeUsage.WithLabelValues("free").Set(float64(usage.Free))
		} else {
			log.Debug().Err(err).Str("path", mm.storePath).Msg("Failed to read store volume usage")
		}
	}
}

// collectGoRuntimeMetrics collects Go runtime metrics
func (mm *MetricsManager) collectGoRuntimeMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.heapAlloc.Set(float64(m.HeapAlloc))
	mm.heapSys.Set(float64(m.HeapSys))
	mm.gcPauseNs.Observe(float64(m.PauseNs[(m.NumGC+255)%256]))
	mm.gcFraction.Set(m.GCCPUFraction)
}
