package middleware

import (
	"github.com/grafana/pyroscope-go"

	"github.com/duynhne/campus-portal/config"
)

var profiler *pyroscope.Profiler

// InitProfiling starts continuous profiling to Pyroscope.
func InitProfiling(cfg *config.Config) error {
	var err error
	profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Profiling.ServiceName,
		ServerAddress:   cfg.Profiling.Endpoint,
		Tags: map[string]string{
			"service":   cfg.Service.Name,
			"namespace": detectNamespace(cfg.Service),
			"version":   cfg.Service.Version,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Logger: pyroscope.StandardLogger,
	})
	return err
}

// StopProfiling stops Pyroscope profiling
func StopProfiling() {
	if profiler != nil {
		_ = profiler.Stop()
	}
}
