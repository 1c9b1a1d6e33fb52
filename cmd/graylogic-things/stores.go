package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-redis/redis/v8"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/transport"
	"github.com/nerrad567/gray-logic-things/internal/transport/influxstore"
	"github.com/nerrad567/gray-logic-things/internal/transport/memory"
	"github.com/nerrad567/gray-logic-things/internal/transport/mqttstore"
	"github.com/nerrad567/gray-logic-things/internal/transport/redisstore"
	"github.com/nerrad567/gray-logic-things/internal/transport/sqlitestore"
	"github.com/nerrad567/gray-logic-things/migrations"
)

// storeSet holds the record stores named in configuration, plus the
// resources behind them.
type storeSet struct {
	stores  map[string]transport.Transport
	checks  map[string]func(context.Context) error
	closers []func()
}

// Get returns the named store, or nil.
func (s *storeSet) Get(name string) transport.Transport {
	return s.stores[name]
}

// Replace swaps the named store, used when it is bound to a primary.
func (s *storeSet) Replace(name string, t transport.Transport) {
	s.stores[name] = t
}

// Names lists the open stores.
func (s *storeSet) Names() []string {
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HealthCheck verifies every backing connection.
func (s *storeSet) HealthCheck(ctx context.Context) error {
	for _, name := range s.Names() {
		if check := s.checks[name]; check != nil {
			if err := check(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

// Close releases resources in reverse opening order.
func (s *storeSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores opens every enabled store. On error, stores opened so far
// are closed.
func openStores(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (_ *storeSet, err error) {
	s := &storeSet{
		stores: map[string]transport.Transport{"memory": memory.New()},
		checks: make(map[string]func(context.Context) error),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if cfg.Database.Enabled {
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.closers = append(s.closers, func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		})
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		s.stores["sqlite"] = sqlitestore.New(db)
		s.checks["sqlite"] = db.HealthCheck
		log.Info("sqlite store ready", "path", cfg.Database.Path)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() {
			log.Info("closing redis")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		})
		store := redisstore.New(client, cfg.Redis.Prefix)
		store.SetLogger(log.Component("redisstore"))
		s.stores["redis"] = store
		s.checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		log.Info("redis store ready", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	}

	if cfg.MQTT.Enabled && mqttClient != nil {
		// #nosec G115 -- qos validated to 0..2 by config
		store := mqttstore.New(mqttClient, "", byte(cfg.MQTT.QoS))
		if err := store.Start(); err != nil {
			return nil, fmt.Errorf("starting MQTT store: %w", err)
		}
		s.closers = append(s.closers, func() {
			if stopErr := store.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT store", "error", stopErr)
			}
		})
		s.stores["mqtt"] = store
		log.Info("mqtt store ready", "prefix", mqtt.DefaultRecordPrefix)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		s.closers = append(s.closers, func() {
			log.Info("closing InfluxDB connection")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		s.stores["influxdb"] = influxstore.New(client)
		s.checks["influxdb"] = client.HealthCheck
		log.Info("InfluxDB store ready",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	return s, nil
}
