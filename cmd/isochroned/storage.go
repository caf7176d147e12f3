package main

import (
	"fmt"

	"github.com/pursuit-ops/isochroned/internal/config"
	"github.com/pursuit-ops/isochroned/internal/database"
	"github.com/pursuit-ops/isochroned/internal/notify"
	"github.com/pursuit-ops/isochroned/internal/storage"
	gormstorage "github.com/pursuit-ops/isochroned/internal/storage/gorm"
	"github.com/pursuit-ops/isochroned/internal/storage/memory"
)

func newStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		Logger.Info("Memory storage backend initialized")
		return memory.New(), nil

	case "postgres", "sqlite":
		m := database.NewManager(ZLogger.With().Str("component", "database").Logger())
		m.SqliteFilePath = cfg.SQLite.Path
		if err := m.Connect(cfg.Type); err != nil {
			return nil, err
		}
		Logger.Info("GORM storage backend initialized",
			"dialect", m.DB.Dialector.Name(), "fallback", cfg.Type == "postgres" && m.ShouldSaveLocal)
		return gormstorage.New(m.DB), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// newNotifier builds the configured event sinks. The hub is returned
// separately so the HTTP router can serve subscribers; it is nil when
// WebSocket delivery is disabled.
func newNotifier(cfg config.NotifyConfig) (notify.Notifier, *notify.Hub, error) {
	var sinks notify.Multi
	var hub *notify.Hub

	if cfg.WebSocket.Enabled {
		hub = notify.NewHub(Logger.With("component", "websocket"))
		sinks = append(sinks, hub)
	}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
			return nil, nil, fmt.Errorf("kafka enabled without brokers or topic")
		}
		sinks = append(sinks, notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		Logger.Info("Kafka notifier enabled", "topic", cfg.Kafka.Topic)
	}

	if len(sinks) == 0 {
		return notify.Nop{}, nil, nil
	}
	return sinks, hub, nil
}
