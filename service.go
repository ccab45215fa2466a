package grade_export

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// CoreService bundles the ambient services shared by the exporter, the web layer and the cli.
type CoreService struct {
	Config  *Config
	Logger  Logger
	Metrics Metrics
}

// NewCoreService loads the config folder and sets up logging and metrics from it.
func NewCoreService(configPath string) (*CoreService, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	lc := config.LayerServiceConfig
	logger := NewLogger(lc.ServiceName, lc.LogFormat, lc.LogLevel)

	metrics, err := NewMetrics(config)
	if err != nil {
		return nil, err
	}

	return &CoreService{
		Config:  config,
		Logger:  logger,
		Metrics: metrics,
	}, nil
}

// WaitForStop listens for SIGINT (Ctrl+C) and SIGTERM (graceful docker stop).
//
//	It accepts a list of stoppables that will be stopped when a signal is received.
func WaitForStop(logger Logger, stoppables ...Stoppable) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Application stopping!")

	shutdownCtx := context.Background()
	wg := sync.WaitGroup{}
	for _, s := range stoppables {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Stop(shutdownCtx)
			if err != nil {
				logger.Error("Stopping Application failed", "error", err.Error())
				os.Exit(2)
			}
		}()
	}
	wg.Wait()
	logger.Info("Application stopped!")
}
