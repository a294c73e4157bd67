package cmd

import (
	"github.com/spf13/viper"

	"coordplane/internal/config"
	"coordplane/internal/jobqueue"
	"coordplane/internal/lockreg"
	"coordplane/internal/logger"
	"coordplane/internal/orchestrator"
	"coordplane/internal/taskqueue"
)

// activeConfig resolves the effective configuration: environment first,
// then any --root/--agent override from flags or the config file.
func activeConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if root := viper.GetString("root"); root != "" {
		cfg.Root = root
	}
	if agent := viper.GetString("agent"); agent != "" {
		cfg.AgentName = agent
	}
	return cfg, nil
}

func taskQueue() (*taskqueue.Queue, *config.Config, error) {
	cfg, err := activeConfig()
	if err != nil {
		return nil, nil, err
	}
	return taskqueue.New(cfg, logger.New()), cfg, nil
}

func lockRegistry() (*lockreg.Registry, *config.Config, error) {
	cfg, err := activeConfig()
	if err != nil {
		return nil, nil, err
	}
	return lockreg.New(cfg.LocksDir(), logger.New()), cfg, nil
}

func channel() (*orchestrator.Channel, *config.Config, error) {
	cfg, err := activeConfig()
	if err != nil {
		return nil, nil, err
	}
	return orchestrator.NewChannel(cfg, logger.New()), cfg, nil
}

func jobQueue() (*jobqueue.Queue, *config.Config, error) {
	cfg, err := activeConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New()
	locks := lockreg.New(cfg.LocksDir(), log)
	return jobqueue.New(cfg, locks, log), cfg, nil
}
