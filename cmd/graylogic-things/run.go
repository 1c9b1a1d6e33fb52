package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/bridges/mqttbridge"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/manager"
	"github.com/nerrad567/gray-logic-things/internal/mirror"
	"github.com/nerrad567/gray-logic-things/internal/runloop"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// maxSettle caps the wait after disconnecting bridges.
const maxSettle = 5 * time.Second

// run is the runner, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Things",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"runner_id", cfg.Runner.ID,
	)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	stores, err := openStores(ctx, cfg, mqttClient, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := stores.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("health check failed: mqtt: %w", err)
		}
	}
	log.Info("all health checks passed", "stores", stores.Names())

	registry, err := loadRegistry(cfg, mqttClient, log)
	if err != nil {
		return err
	}

	loop := runloop.New()
	m := manager.New(loop, registry, cfg.Runner.ID)
	m.SetLogger(log.Component("manager"))
	engine := mirror.NewEngine(loop)
	engine.SetLogger(log.Component("mirror"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})

	if err := wireSync(gctx, cfg, stores, engine, m); err != nil {
		return err
	}

	m.OnDiscovered(func(t *thing.Thing) {
		log.Info("thing discovered", "thing_id", t.ID(), "model_code", t.ModelCode(), "seq", t.Seq())
	})

	var spec any
	if cfg.Bindings.Model != "" {
		spec = cfg.Bindings.Model
	}
	if _, err := m.Connect(spec, nil, nil); err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"bindings", len(registry.Bindings()),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	settle := min(m.Disconnect(), maxSettle)
	if settle > 0 {
		log.Info("waiting for bridges to settle", "duration", settle)
		time.Sleep(settle)
	}

	log.Info("Gray Logic Things stopped")
	return nil
}

// loadConfig reads the config file, or the built-in defaults when the
// default path does not exist.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default()
		if err != nil {
			return nil, fmt.Errorf("loading default config: %w", err)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

// factories returns the bridge constructors available to the catalog.
// The MQTT bridge is only offered when an MQTT client exists.
func factories(cfg *config.Config, client mqttbridge.Client, log *logging.Logger) map[string]bridge.Factory {
	out := make(map[string]bridge.Factory)
	if client == nil {
		return out
	}
	build := mqttbridge.Factory(client, log.Component("mqttbridge"))
	defaults := map[string]any{mqttbridge.ParamProtocol: cfg.Bindings.Protocol}
	out[mqttbridge.Kind] = func(init map[string]any) (bridge.Bridge, error) {
		return build(thing.Defaults(defaults, init))
	}
	return out
}

func loadRegistry(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (*bridge.StaticRegistry, error) {
	var client mqttbridge.Client
	if mqttClient != nil {
		client = mqttClient
	}

	if cfg.Bindings.Catalog == "" {
		log.Warn("no binding catalog configured, nothing will be discovered")
		return bridge.NewStaticRegistry()
	}
	registry, err := bridge.LoadCatalog(cfg.Bindings.Catalog, factories(cfg, client, log))
	if err != nil {
		return nil, fmt.Errorf("loading binding catalog: %w", err)
	}
	log.Info("binding catalog loaded",
		"path", cfg.Bindings.Catalog,
		"bindings", len(registry.Bindings()),
	)
	return registry, nil
}

// wireSync binds stores to each other first, so Things wired to a
// secondary see it through its primary. Every policy is parsed before
// anything is wired, so a bad entry leaves no partial wiring behind.
func wireSync(ctx context.Context, cfg *config.Config, stores *storeSet, engine *mirror.Engine, m *manager.Manager) error {
	bindPolicies := make([]mirror.BindPolicy, len(cfg.Sync.Stores))
	for i, s := range cfg.Sync.Stores {
		policy, err := mirror.ParseBindPolicy(s.Policy)
		if err != nil {
			return fmt.Errorf("sync.stores[%d]: %w", i, err)
		}
		bindPolicies[i] = policy
	}
	thingPolicies := make([]mirror.ThingPolicy, len(cfg.Sync.Things))
	for i, t := range cfg.Sync.Things {
		policy, err := thingPolicy(t.Policy)
		if err != nil {
			return fmt.Errorf("sync.things[%d]: %w", i, err)
		}
		thingPolicies[i] = policy
	}

	for i, s := range cfg.Sync.Stores {
		bound, err := mirror.Bind(ctx, stores.Get(s.Primary), stores.Get(s.Secondary), bindPolicies[i])
		if err != nil {
			return fmt.Errorf("sync.stores[%d]: %w", i, err)
		}
		stores.Replace(s.Secondary, bound)
	}
	for i, t := range cfg.Sync.Things {
		if err := engine.WireThings(ctx, stores.Get(t.Store), m.Things(), thingPolicies[i]); err != nil {
			return fmt.Errorf("sync.things[%d]: %w", i, err)
		}
	}
	return nil
}

// thingPolicy converts a configured policy. Bands left out are not
// mirrored.
func thingPolicy(bands map[string]config.DirectionConfig) (mirror.ThingPolicy, error) {
	converted := make(map[string]mirror.Direction, len(bands))
	for band, dir := range bands {
		converted[band] = mirror.Direction{Send: dir.Send, Receive: dir.Receive}
	}
	return mirror.ThingPolicyFromBands(converted)
}
