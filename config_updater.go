package grade_export

import (
	"context"
	"fmt"
	"time"
)

const defaultRefreshInterval = 5 * time.Second

// ConfigListener is notified with the reloaded config whenever it changed on disk.
type ConfigListener interface {
	UpdateConfiguration(config *Config) LayerError
}

type configUpdater struct {
	ticker *time.Ticker
	done   chan struct{}
	logger Logger
}

func (u *configUpdater) Stop(ctx context.Context) error {
	u.logger.Info("Stopping config updater")
	u.ticker.Stop()
	close(u.done)
	return nil
}

func NewConfigUpdater(
	config *Config,
	l Logger,
	listeners ...ConfigListener) (Stoppable, error) {
	interval := defaultRefreshInterval
	if config.LayerServiceConfig.ConfigRefreshInterval != "" {
		d, err := time.ParseDuration(config.LayerServiceConfig.ConfigRefreshInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid config_refresh_interval: %w", err)
		}
		interval = d
	}
	u := &configUpdater{logger: l, done: make(chan struct{})}
	u.ticker = time.NewTicker(interval)
	current := config
	go func() {
		for {
			select {
			case <-u.ticker.C:
				current = checkForUpdates(current, l, listeners...)
			case <-u.done:
				return
			}
		}
	}()
	return u, nil
}

// checkForUpdates returns the config that is active after the check.
func checkForUpdates(config *Config, logger Logger, listeners ...ConfigListener) *Config {
	logger.Debug("checking config for updates in " + config.ConfigPath + ".")
	loadedConf, err := LoadConfig(config.ConfigPath)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to load config: %v", err.Error()))
		return config
	}
	if config.equals(loadedConf) {
		return config
	}
	logger.Info("Config changed, updating...")
	for _, listener := range listeners {
		lerr := listener.UpdateConfiguration(loadedConf)
		if lerr != nil {
			logger.Error(fmt.Sprintf("Failed to update config: %v", lerr.Error()))
			return config
		}
	}
	return loadedConf
}
