package manager

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/bridge/bridgetest"
	"github.com/nerrad567/gray-logic-things/internal/runloop"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

type recordingLogger struct {
	noopLogger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprint(append([]any{msg}, args...)...))
}

func deviceMeta(id string) map[string]any {
	return map[string]any{thing.MetaDeviceID: id, "schema:name": "Lamp " + id}
}

// newTestManager registers one binding per exemplar, with model codes
// taken from the bindings slice.
func newTestManager(t *testing.T, bindings ...bridge.Binding) (*Manager, *runloop.Loop) {
	t.Helper()
	reg, err := bridge.NewStaticRegistry(bindings...)
	if err != nil {
		t.Fatalf("NewStaticRegistry() error = %v", err)
	}
	loop := runloop.New()
	return New(loop, reg, "runner-test"), loop
}

func lampBinding(ex *bridgetest.Mock) bridge.Binding {
	return bridge.Binding{
		ModelCode: "lamp-v1",
		Bridge:    "mock",
		New:       bridgetest.Factory(ex),
		Bands: map[string]map[string]any{
			thing.BandModel: {"name": "Lamp"},
		},
	}
}

func TestConnect_ReturnsEmptySetSynchronously(t *testing.T) {
	ex := bridgetest.New(nil, true)
	ex.AddInstance(bridgetest.New(deviceMeta("lamp-1"), true))
	m, loop := newTestManager(t, lampBinding(ex))

	specs := []any{nil, "lamp-v1", "LampV1", map[string]any{ModelSpecKey: "lamp-v1"}, ModelSpec{ModelCode: "lamp-v1"}}
	for _, spec := range specs {
		t.Run(fmt.Sprintf("%T %v", spec, spec), func(t *testing.T) {
			set, err := m.Connect(spec, nil, nil)
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			if set.Len() != 0 {
				t.Errorf("Connect() returned %d things, want 0", set.Len())
			}
			if ex.DiscoverCalls != 0 {
				t.Error("Discover should not run before the loop turns")
			}
		})
	}

	loop.Drain()
	if ex.DiscoverCalls != len(specs) {
		t.Errorf("DiscoverCalls = %d, want %d", ex.DiscoverCalls, len(specs))
	}
}

func TestConnect_InvalidArgument(t *testing.T) {
	m, loop := newTestManager(t, lampBinding(bridgetest.New(nil, true)))

	tests := []struct {
		name string
		spec any
	}{
		{"integer", 42},
		{"map without model code", map[string]any{"protocol": "zigbee"}},
		{"map with numeric model code", map[string]any{ModelSpecKey: 7}},
		{"nil struct pointer", (*ModelSpec)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := m.Connect(tt.spec, nil, nil)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Connect() error = %v, want ErrInvalidArgument", err)
			}
			if set != nil {
				t.Error("Connect() should not return a set on error")
			}
		})
	}

	if loop.Pending() != 0 {
		t.Errorf("Pending() = %d, invalid calls must not schedule work", loop.Pending())
	}
}

func TestConnect_LampScenario(t *testing.T) {
	ex := bridgetest.New(nil, true)
	inst := bridgetest.New(deviceMeta("lamp-1"), false)
	ex.AddInstance(inst)
	m, loop := newTestManager(t, lampBinding(ex))

	var discovered []*thing.Thing
	m.OnDiscovered(func(th *thing.Thing) { discovered = append(discovered, th) })

	set, err := m.Connect("lamp-v1", nil, map[string]any{"schema:room": "hall"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	loop.Drain()

	if set.Len() != 1 {
		t.Fatalf("set.Len() = %d, want 1", set.Len())
	}
	th := set.Things()[0]
	if th.ModelCode() != "lamp-v1" {
		t.Errorf("ModelCode() = %q, want lamp-v1", th.ModelCode())
	}
	if want := thing.MakeID("lamp-1", "lamp-v1", "runner-test"); th.ID() != want {
		t.Errorf("ID() = %q, want %q", th.ID(), want)
	}
	if th.Seq() != 1 {
		t.Errorf("Seq() = %d, want 1", th.Seq())
	}
	if len(discovered) != 1 || discovered[0] != th {
		t.Errorf("OnDiscovered saw %v", discovered)
	}

	meta := th.State(thing.BandMeta)
	if meta[thing.MetaThingID] != th.ID() || meta[thing.MetaModelID] != "lamp-v1" {
		t.Errorf("meta ids = %v", meta)
	}
	if meta["schema:room"] != "hall" || meta["schema:name"] != "Lamp lamp-1" {
		t.Errorf("meta = %v, want caller and bridge metadata", meta)
	}
	if th.State(thing.BandModel)["name"] != "Lamp" {
		t.Errorf("model = %v", th.State(thing.BandModel))
	}
	if inst.ConnectCount() != 1 || inst.Pulls() != 1 {
		t.Errorf("Connect/Pull = %d/%d, want 1/1", inst.ConnectCount(), inst.Pulls())
	}

	if th.State(thing.BandConnection)[thing.ConnectionReachable] != false {
		t.Error("connection.reachable should start false")
	}
	inst.SetReachable(true)
	loop.Drain()
	if th.State(thing.BandConnection)[thing.ConnectionReachable] != true {
		t.Error("connection.reachable should be true after the bridge reports reachable")
	}
}

func TestConnect_TwoInstancesSameDevice(t *testing.T) {
	ex := bridgetest.New(nil, true)
	first := bridgetest.New(deviceMeta("lamp-1"), false)
	second := bridgetest.New(deviceMeta("lamp-1"), true)
	ex.AddInstance(first)
	ex.AddInstance(second)
	m, loop := newTestManager(t, lampBinding(ex))

	set, _ := m.Connect("lamp-v1", nil, nil)
	loop.Drain()

	if set.Len() != 1 {
		t.Fatalf("set.Len() = %d, want 1", set.Len())
	}
	if m.Things().Len() != 1 {
		t.Errorf("Things().Len() = %d, want 1", m.Things().Len())
	}
	th := set.Things()[0]
	if th.Bridge() != second {
		t.Error("thing should be bound to the reachable second instance")
	}
	if th.State(thing.BandConnection)[thing.ConnectionReachable] != true {
		t.Error("connection.reachable should follow the new bridge")
	}
}

func TestConnect_RebindSafety(t *testing.T) {
	tests := []struct {
		name              string
		existingReachable bool
		candidateReach    bool
		wantRebind        bool
	}{
		{"reachable thing is never rebound", true, true, false},
		{"reachable thing ignores unreachable candidate", true, false, false},
		{"unreachable candidate never replaces", false, false, false},
		{"reachable candidate replaces unreachable", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := bridgetest.New(nil, true)
			bound := bridgetest.New(deviceMeta("lamp-1"), tt.existingReachable)
			ex.AddInstance(bound)
			m, loop := newTestManager(t, lampBinding(ex))

			set, _ := m.Connect("lamp-v1", nil, nil)
			loop.Drain()
			th := set.Things()[0]

			candidate := bridgetest.New(deviceMeta("lamp-1"), tt.candidateReach)
			ex.Announce(candidate)
			loop.Drain()

			want := bridge.Bridge(bound)
			if tt.wantRebind {
				want = candidate
			}
			if th.Bridge() != want {
				t.Errorf("bound bridge changed = %v, want rebind %v", th.Bridge() != bridge.Bridge(bound), tt.wantRebind)
			}
			if m.Thing(th.ID()) != th {
				t.Error("identity must be preserved")
			}
			if set.Len() != 1 {
				t.Errorf("set.Len() = %d, want 1", set.Len())
			}
		})
	}
}

func TestBind_OStatePushedAndCleared(t *testing.T) {
	ex := bridgetest.New(nil, true)
	inst := bridgetest.New(deviceMeta("lamp-1"), true)
	ex.AddInstance(inst)
	m, loop := newTestManager(t, lampBinding(ex))

	set, _ := m.Connect("lamp-v1", nil, nil)
	loop.Drain()
	th := set.Things()[0]

	_, err := th.Update(thing.BandOState, map[string]any{
		"power":                   "on",
		"level":                   nil,
		thing.AnnotationTimestamp: "2026-01-01T00:00:00Z",
	}, thing.UpdateOptions{})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	loop.Drain()

	if inst.PushCount() != 1 {
		t.Fatalf("PushCount() = %d, want 1", inst.PushCount())
	}
	push := inst.LastPush()
	if len(push) != 1 || push["power"] != "on" {
		t.Errorf("pushed %v, want only power", push)
	}
	if n := th.Band(thing.BandOState).Len(); n != 0 {
		t.Errorf("ostate has %d keys after push completion, want 0", n)
	}
}

func TestBind_OStateHeldUntilPushCompletes(t *testing.T) {
	ex := bridgetest.New(nil, true)
	inst := bridgetest.New(deviceMeta("lamp-1"), true)
	inst.HoldPush = true
	ex.AddInstance(inst)
	m, loop := newTestManager(t, lampBinding(ex))

	set, _ := m.Connect("lamp-v1", nil, nil)
	loop.Drain()
	th := set.Things()[0]

	th.Update(thing.BandOState, map[string]any{"power": "on"}, thing.UpdateOptions{})
	loop.Drain()
	if th.Band(thing.BandOState).Len() != 1 {
		t.Error("ostate should stay pending until the push completes")
	}

	inst.CompletePushes()
	loop.Drain()
	if th.Band(thing.BandOState).Len() != 0 {
		t.Error("ostate should be cleared after the push completes")
	}
}

func TestBind_StaleListenerDetachesAfterRebind(t *testing.T) {
	ex := bridgetest.New(nil, true)
	first := bridgetest.New(deviceMeta("lamp-1"), false)
	ex.AddInstance(first)
	m, loop := newTestManager(t, lampBinding(ex))

	set, _ := m.Connect("lamp-v1", nil, nil)
	loop.Drain()
	th := set.Things()[0]

	second := bridgetest.New(deviceMeta("lamp-1"), true)
	ex.Announce(second)
	loop.Drain()

	th.Update(thing.BandOState, map[string]any{"power": "off"}, thing.UpdateOptions{})
	loop.Drain()

	if first.PushCount() != 0 {
		t.Errorf("old bridge received %d pushes, want 0", first.PushCount())
	}
	if second.PushCount() != 1 {
		t.Errorf("new bridge received %d pushes, want 1", second.PushCount())
	}

	first.Report(map[string]any{"power": "stale"})
	loop.Drain()
	if _, ok := th.Band(thing.BandIState).Get("power"); ok {
		t.Error("reports from the old bridge should be ignored")
	}
}

func TestPulled_IStateConflictChecked(t *testing.T) {
	ex := bridgetest.New(nil, true)
	inst := bridgetest.New(deviceMeta("lamp-1"), true)
	ex.AddInstance(inst)
	m, loop := newTestManager(t, lampBinding(ex))

	set, _ := m.Connect("lamp-v1", nil, nil)
	loop.Drain()
	th := set.Things()[0]

	t0 := time.Date(2020, 5, 1, 8, 0, 0, 0, time.UTC)
	inst.Report(map[string]any{"power": "on", thing.AnnotationTimestamp: thing.FormatTimestamp(t0)})
	loop.Drain()
	inst.Report(map[string]any{"power": "off", thing.AnnotationTimestamp: thing.FormatTimestamp(t0.Add(-time.Second))})
	loop.Drain()

	state := th.State(thing.BandIState)
	if state["power"] != "on" {
		t.Errorf("istate power = %v, want on (older report dropped)", state["power"])
	}
	if _, ok := state[thing.AnnotationTimestamp]; ok {
		t.Error("timestamp annotation should not be stored as a key")
	}

	inst.Report(map[string]any{"power": "off"})
	loop.Drain()
	if th.State(thing.BandIState)["power"] != "off" {
		t.Error("a current report should be applied")
	}
}

func TestDiscover_MatchFilter(t *testing.T) {
	ex := bridgetest.New(nil, true)
	ex.AddInstance(bridgetest.New(map[string]any{
		thing.MetaDeviceID:                  "other-1",
		"https://iotdb.org/pub/iot#vendor": "other",
	}, true))
	ex.AddInstance(bridgetest.New(map[string]any{
		thing.MetaDeviceID:                  "acme-1",
		"https://iotdb.org/pub/iot#vendor": "acme",
	}, true))

	b := lampBinding(ex)
	b.Match = map[string]any{"iot:vendor": "acme"}
	m, loop := newTestManager(t, b)

	set, _ := m.Connect("lamp-v1", nil, nil)
	loop.Drain()

	if set.Len() != 1 {
		t.Errorf("set.Len() = %d, want 1", set.Len())
	}
	if len(ex.Ignored) != 1 {
		t.Errorf("Ignored = %d, want 1", len(ex.Ignored))
	}
}

func TestDiscover_BindingSelection(t *testing.T) {
	lamp := bridgetest.New(nil, true)
	lampAlt := bridgetest.New(nil, true)
	hidden := bridgetest.New(nil, true)

	m, loop := newTestManager(t,
		bridge.Binding{ModelCode: "lamp-v1", New: bridgetest.Factory(lamp)},
		bridge.Binding{ModelCode: "lamp-v1", New: bridgetest.Factory(lampAlt)},
		bridge.Binding{ModelCode: "hidden-v1", New: bridgetest.Factory(hidden), SkipDiscovery: true},
	)

	if _, err := m.Connect("lamp-v1", nil, nil); err != nil {
		t.Fatal(err)
	}
	loop.Drain()
	if lamp.DiscoverCalls != 1 || lampAlt.DiscoverCalls != 0 {
		t.Errorf("model request probed %d/%d, want only the first binding",
			lamp.DiscoverCalls, lampAlt.DiscoverCalls)
	}

	if _, err := m.Connect(nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	loop.Drain()
	if lamp.DiscoverCalls != 2 || lampAlt.DiscoverCalls != 1 || hidden.DiscoverCalls != 0 {
		t.Errorf("probe-all discover calls = %d/%d/%d, want 2/1/0",
			lamp.DiscoverCalls, lampAlt.DiscoverCalls, hidden.DiscoverCalls)
	}

	for _, spec := range []any{"", ModelSpec{}, map[string]any{ModelSpecKey: ""}} {
		if _, err := m.Connect(spec, nil, nil); err != nil {
			t.Fatalf("Connect(%#v) error = %v", spec, err)
		}
	}
	loop.Drain()
	if lamp.DiscoverCalls != 5 || lampAlt.DiscoverCalls != 4 || hidden.DiscoverCalls != 0 {
		t.Errorf("empty model code discover calls = %d/%d/%d, want 5/4/0",
			lamp.DiscoverCalls, lampAlt.DiscoverCalls, hidden.DiscoverCalls)
	}

	if _, err := m.Connect("hidden-v1", nil, nil); err != nil {
		t.Fatal(err)
	}
	loop.Drain()
	if hidden.DiscoverCalls != 1 {
		t.Error("non-discoverable binding should still be selectable by model code")
	}
}

func TestDiscover_NoMatchingBindingIsLogged(t *testing.T) {
	m, loop := newTestManager(t, lampBinding(bridgetest.New(nil, true)))
	logger := &recordingLogger{}
	m.SetLogger(logger)

	var sessions []Session
	m.OnEnqueued(func(s Session) { sessions = append(sessions, s) })

	set, err := m.Connect("switch-v9", nil, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v, want nil", err)
	}
	loop.Drain()

	if set.Len() != 0 {
		t.Error("set should stay empty")
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %v, want 1", logger.errors)
	}
	if len(sessions) != 1 || sessions[0].ModelCode != "switch-v9" || sessions[0].Things != set {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestDiscover_InitMerging(t *testing.T) {
	ex := bridgetest.New(nil, true)
	b := lampBinding(ex)
	b.Init = map[string]any{"a": 1, "b": 1}
	m, loop := newTestManager(t, b)

	_, err := m.Connect(ModelSpec{ModelCode: "lamp-v1", Params: map[string]any{"b": 2}},
		map[string]any{"b": 3, "c": 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	loop.Drain()

	got := ex.Init()
	want := map[string]any{"a": 1, "b": 2, "c": 3}
	if !thing.Equal(got, want) {
		t.Errorf("exemplar init = %v, want %v", got, want)
	}
}

func TestDiscover_FactoryErrorIsolated(t *testing.T) {
	good := bridgetest.New(nil, true)
	good.AddInstance(bridgetest.New(deviceMeta("lamp-1"), true))

	failing := bridge.Binding{
		ModelCode: "broken-v1",
		New: func(map[string]any) (bridge.Bridge, error) {
			return nil, errors.New("no adapter")
		},
	}
	m, loop := newTestManager(t, failing, lampBinding(good))
	m.SetLogger(&recordingLogger{})

	set, _ := m.Connect(nil, nil, nil)
	loop.Drain()

	if set.Len() != 1 {
		t.Errorf("set.Len() = %d, want 1 despite the failing binding", set.Len())
	}
}

func TestDisconnect(t *testing.T) {
	ex := bridgetest.New(nil, true)
	ex.SettleTime = time.Second
	inst := bridgetest.New(deviceMeta("lamp-1"), true)
	inst.SettleTime = 2 * time.Second
	ex.AddInstance(inst)
	m, loop := newTestManager(t, lampBinding(ex))

	set, _ := m.Connect("lamp-v1", nil, nil)
	loop.Drain()

	if got := m.Disconnect(); got != 3*time.Second {
		t.Errorf("Disconnect() = %v, want 3s", got)
	}
	if !ex.Disconnected || !inst.Disconnected {
		t.Error("exemplar and instance should both be disconnected")
	}

	ex.Announce(bridgetest.New(deviceMeta("lamp-2"), true))
	loop.Drain()
	if set.Len() != 1 {
		t.Error("instances reported after Disconnect should be dropped")
	}
}

func TestThings_IncludesLaterDiscoveries(t *testing.T) {
	ex := bridgetest.New(nil, true)
	ex.AddInstance(bridgetest.New(deviceMeta("lamp-1"), true))
	m, loop := newTestManager(t, lampBinding(ex))

	m.Connect("lamp-v1", nil, nil)
	loop.Drain()

	all := m.Things()
	if all.Len() != 1 {
		t.Fatalf("Things().Len() = %d, want 1", all.Len())
	}

	ex.Announce(bridgetest.New(deviceMeta("lamp-2"), true))
	loop.Drain()
	if all.Len() != 2 {
		t.Errorf("Things().Len() = %d after second discovery, want 2", all.Len())
	}
	if all.Things()[1].Seq() != 2 {
		t.Errorf("second thing Seq() = %d, want 2", all.Things()[1].Seq())
	}
}
