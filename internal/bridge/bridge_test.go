package bridge_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/bridge/bridgetest"
)

// strip hides the optional methods of the embedded mock.
type stripped struct{ b bridge.Bridge }

func (s stripped) Discover()                                { s.b.Discover() }
func (s stripped) Connect(p map[string]any)                 { s.b.Connect(p) }
func (s stripped) Pull()                                    { s.b.Pull() }
func (s stripped) Push(st map[string]any, done func(error)) { s.b.Push(st, done) }
func (s stripped) Reachable() bool                          { return s.b.Reachable() }
func (s stripped) Meta() map[string]any                     { return s.b.Meta() }
func (s stripped) SetDiscovered(fn func(bridge.Bridge))     { s.b.SetDiscovered(fn) }
func (s stripped) SetPulled(fn func(map[string]any))        { s.b.SetPulled(fn) }

func TestCapabilitiesOf(t *testing.T) {
	m := bridgetest.New(nil, true)
	m.SettleTime = 2 * time.Second

	caps := bridge.CapabilitiesOf(m)
	if caps.Ignore == nil || caps.Disconnect == nil {
		t.Fatal("mock should expose Ignore and Disconnect")
	}
	if got := caps.Disconnect(); got != 2*time.Second {
		t.Errorf("Disconnect() = %v, want 2s", got)
	}

	caps = bridge.CapabilitiesOf(stripped{b: m})
	if caps.Ignore != nil || caps.Disconnect != nil {
		t.Error("stripped bridge should expose no optional capabilities")
	}
}

func TestBinding_Validate(t *testing.T) {
	factory := bridgetest.Factory(bridgetest.New(nil, true))
	tests := []struct {
		name    string
		binding bridge.Binding
		wantErr bool
	}{
		{"valid", bridge.Binding{ModelCode: "lamp-v1", New: factory}, false},
		{"missing model code", bridge.Binding{New: factory}, true},
		{"missing factory", bridge.Binding{ModelCode: "lamp-v1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.binding.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, bridge.ErrInvalidBinding) {
				t.Errorf("Validate() error = %v, want ErrInvalidBinding", err)
			}
		})
	}
}

func TestStaticRegistry_PreservesOrder(t *testing.T) {
	factory := bridgetest.Factory(bridgetest.New(nil, true))
	reg, err := bridge.NewStaticRegistry(
		bridge.Binding{ModelCode: "a", New: factory},
		bridge.Binding{ModelCode: "b", New: factory},
	)
	if err != nil {
		t.Fatalf("NewStaticRegistry() error = %v", err)
	}
	if err := reg.Register(bridge.Binding{ModelCode: "c", New: factory}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got := reg.Bindings()
	if len(got) != 3 || got[0].ModelCode != "a" || got[2].ModelCode != "c" {
		t.Errorf("Bindings() = %+v", got)
	}

	got[0].ModelCode = "mutated"
	if reg.Bindings()[0].ModelCode != "a" {
		t.Error("Bindings() should return a copy")
	}

	if _, err := bridge.NewStaticRegistry(bridge.Binding{}); err == nil {
		t.Error("NewStaticRegistry() should reject invalid bindings")
	}
}

const testCatalog = `
bindings:
  - model_code: lamp-v1
    bridge: mock
    init:
      protocol: zigbee
    match:
      "iot:vendor": acme
    connect:
      qos: 1
    bands:
      model:
        name: Lamp
        attributes:
          on: {type: boolean}
      meta:
        "schema:manufacturer": Acme
  - model_code: hidden-sensor
    bridge: mock
    skip_discovery: true
`

func TestParseCatalog(t *testing.T) {
	factories := map[string]bridge.Factory{"mock": bridgetest.Factory(bridgetest.New(nil, true))}

	reg, err := bridge.ParseCatalog([]byte(testCatalog), factories)
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}

	bindings := reg.Bindings()
	if len(bindings) != 2 {
		t.Fatalf("len(Bindings()) = %d, want 2", len(bindings))
	}

	lamp := bindings[0]
	if lamp.ModelCode != "lamp-v1" || lamp.Bridge != "mock" {
		t.Errorf("lamp binding = %+v", lamp)
	}
	if lamp.Init["protocol"] != "zigbee" {
		t.Errorf("Init = %v", lamp.Init)
	}
	if lamp.Match["iot:vendor"] != "acme" {
		t.Errorf("Match = %v", lamp.Match)
	}
	if lamp.ConnectParams["qos"] != 1 {
		t.Errorf("ConnectParams = %v", lamp.ConnectParams)
	}
	attrs, ok := lamp.Bands["model"]["attributes"].(map[string]any)
	if !ok || attrs["on"] == nil {
		t.Errorf("model attributes = %v", lamp.Bands["model"])
	}
	if !bindings[1].SkipDiscovery {
		t.Error("hidden-sensor should skip discovery")
	}
}

func TestParseCatalog_UnknownBridge(t *testing.T) {
	_, err := bridge.ParseCatalog([]byte(testCatalog), map[string]bridge.Factory{})
	if !errors.Is(err, bridge.ErrUnknownBridge) {
		t.Errorf("ParseCatalog() error = %v, want ErrUnknownBridge", err)
	}
}

func TestParseCatalog_InvalidYAML(t *testing.T) {
	_, err := bridge.ParseCatalog([]byte("bindings: [oops"), nil)
	if !errors.Is(err, bridge.ErrCatalog) {
		t.Errorf("ParseCatalog() error = %v, want ErrCatalog", err)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindings.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0600); err != nil {
		t.Fatal(err)
	}
	factories := map[string]bridge.Factory{"mock": bridgetest.Factory(bridgetest.New(nil, true))}

	if _, err := bridge.LoadCatalog(path, factories); err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if _, err := bridge.LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"), factories); !errors.Is(err, bridge.ErrCatalog) {
		t.Errorf("LoadCatalog() missing file error = %v, want ErrCatalog", err)
	}
}
