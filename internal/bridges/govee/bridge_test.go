package govee

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/influxdb"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.published)
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.subscriptions)
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage simulates receiving an MQTT message on a subscribed topic.
func (m *MockMQTTClient) SimulateMessage(subscription, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[subscription]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

// lastPayload returns the most recent payload published on topic.
func (m *MockMQTTClient) lastPayload(topic string) (string, bool) {
	pub := m.GetPublished()
	for i := len(pub) - 1; i >= 0; i-- {
		if pub[i].Topic == topic {
			return string(pub[i].Payload), true
		}
	}
	return "", false
}

// mockAPI implements VendorAPI for testing.
type mockAPI struct {
	mu       sync.Mutex
	devices  []goveeapi.Device
	listErr  error
	states   map[string]map[string]any
	reply    map[string]any
	usage    goveeapi.Usage
	queried  []string
	commands []goveeapi.Command
}

func newMockAPI(devices ...goveeapi.Device) *mockAPI {
	return &mockAPI{devices: devices, states: make(map[string]map[string]any)}
}

func (m *mockAPI) GetDeviceList(context.Context) ([]goveeapi.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.APICalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.devices), nil
}

func (m *mockAPI) GetDeviceState(_ context.Context, rawID, _ string) goveeapi.StateReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.APICalls++
	m.queried = append(m.queried, rawID)
	return goveeapi.StateReport{Values: maps.Clone(m.states[rawID]), UpdatedAt: time.Now()}
}

func (m *mockAPI) SendCommand(_ context.Context, _, _ string, cmd goveeapi.Command) goveeapi.StateReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.APICalls++
	m.commands = append(m.commands, cmd)
	return goveeapi.StateReport{Values: maps.Clone(m.reply)}
}

func (m *mockAPI) Usage() goveeapi.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

func (m *mockAPI) setDevices(devices ...goveeapi.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = devices
}

func (m *mockAPI) setReply(reply map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
}

func (m *mockAPI) getQueried() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queried)
}

func (m *mockAPI) clearQueried() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queried = nil
}

func (m *mockAPI) getCommands() []goveeapi.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commands)
}

// mockStats implements StatsWriter for testing.
type mockStats struct {
	mu      sync.Mutex
	samples []influxdb.ServiceStats
}

func (m *mockStats) WriteServiceStats(_ string, stats influxdb.ServiceStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, stats)
}

func testOptions(client MQTTClient, api VendorAPI) Options {
	return Options{
		MQTT:   client,
		API:    api,
		Topics: testTopics,
		Intervals: Intervals{
			DeviceList: time.Hour,
			Device:     time.Hour,
			Boost:      time.Hour,
			Heartbeat:  time.Hour,
		},
	}
}

func newTestBridge(t *testing.T, api *mockAPI) (*Bridge, *MockMQTTClient) {
	t.Helper()
	client := NewMockMQTTClient()
	b, err := NewBridge(testOptions(client, api))
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	return b, client
}

func sensorDevice() goveeapi.Device {
	return goveeapi.Device{
		ID:   "11:22:33",
		SKU:  "H5179",
		Name: "Hygrometer",
		Capabilities: []goveeapi.Capability{
			capability(TypeProperty, InstanceSensorTemperature, 0, 0),
			capability(TypeProperty, InstanceSensorHumidity, 0, 0),
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// =============================================================================
// Construction and lifecycle
// =============================================================================

func TestNewBridge_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing mqtt", func(o *Options) { o.MQTT = nil }},
		{"missing api", func(o *Options) { o.API = nil }},
		{"missing prefix", func(o *Options) { o.Topics.Prefix = "" }},
		{"zero device interval", func(o *Options) { o.Intervals.Device = 0 }},
		{"zero boost interval", func(o *Options) { o.Intervals.Boost = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(NewMockMQTTClient(), newMockAPI())
			tt.mutate(&opts)
			if _, err := NewBridge(opts); err == nil {
				t.Error("NewBridge() error = nil, want error")
			}
		})
	}
}

func TestBridge_StartStop(t *testing.T) {
	api := newMockAPI(h6159())
	b, client := newTestBridge(t, api)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !b.Running() {
		t.Error("Running() = false after Start")
	}

	waitFor(t, "initial discovery", b.DiscoveryComplete)

	var topics []string
	for _, s := range client.GetSubscriptions() {
		topics = append(topics, s.Topic)
	}
	for _, want := range append(testTopics.CommandSubscriptions(), "homeassistant/status") {
		if !slices.Contains(topics, want) {
			t.Errorf("missing subscription %q in %v", want, topics)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if b.Running() {
		t.Error("Running() = true after Stop")
	}
	if err := b.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestBridge_StartContextCancelStopsLoops(t *testing.T) {
	b, _ := newTestBridge(t, newMockAPI())

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	waitFor(t, "loops to stop", func() bool { return !b.Running() })
}

// The reference scenario: one H6159 strip with power, brightness and
// colour ends up as an rgb-only light with seeded brightness and rgb_max.
func TestBridge_EndToEndRGBStrip(t *testing.T) {
	api := newMockAPI(h6159())
	b, client := newTestBridge(t, api)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop(context.Background())

	waitFor(t, "initial discovery", b.DiscoveryComplete)

	rec, err := b.Store().Get("AABBCCDDEEFF0011")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !slices.Equal(rec.Component.SupportedColorModes, []string{entity.ColorModeRGB}) {
		t.Errorf("SupportedColorModes = %v, want [rgb]", rec.Component.SupportedColorModes)
	}
	if rec.Light == nil || rec.Light.Brightness == nil || *rec.Light.Brightness != 0 {
		t.Errorf("brightness = %+v, want 0", rec.Light)
	}
	if rec.Light.RGBMax == nil || *rec.Light.RGBMax != 16777215 {
		t.Errorf("rgb_max = %v, want 16777215", rec.Light.RGBMax)
	}
	if !rec.Discovered() || rec.Availability != entity.Online {
		t.Errorf("discovered=%v availability=%q", rec.Discovered(), rec.Availability)
	}

	if _, ok := client.lastPayload("homeassistant/light/govee2mqtt_AABBCCDDEEFF0011/config"); !ok {
		t.Error("light discovery not published")
	}
	if _, ok := client.lastPayload("homeassistant/binary_sensor/govee2mqtt_service_status/config"); !ok {
		t.Error("service discovery not published")
	}
	if got, _ := client.lastPayload(testTopics.DeviceAvailability("AABBCCDDEEFF0011")); got != entity.Online {
		t.Errorf("availability = %q, want online", got)
	}
}

func TestBridge_DiscoveryBeforeState(t *testing.T) {
	b, client := newTestBridge(t, newMockAPI(h6159()))

	if !b.refreshDeviceList(context.Background()) {
		t.Fatal("refreshDeviceList() = false")
	}

	id := "AABBCCDDEEFF0011"
	discovery := -1
	for i, p := range client.GetPublished() {
		switch {
		case strings.HasSuffix(p.Topic, "govee2mqtt_"+id+"/config"):
			discovery = i
		case strings.Contains(p.Topic, "govee2mqtt_"+id+"/"):
			if discovery < 0 {
				t.Errorf("%s published before discovery", p.Topic)
			}
		}
	}
	if discovery < 0 {
		t.Error("discovery never published")
	}
}

// =============================================================================
// Device list
// =============================================================================

func TestBridge_ListMarksMissingOffline(t *testing.T) {
	api := newMockAPI(h6159(), sensorDevice())
	b, client := newTestBridge(t, api)
	ctx := context.Background()

	b.refreshDeviceList(ctx)
	api.setDevices(sensorDevice())
	client.ClearPublished()
	b.refreshDeviceList(ctx)

	rec, err := b.Store().Get("AABBCCDDEEFF0011")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Availability != entity.Offline {
		t.Errorf("Availability = %q, want offline", rec.Availability)
	}
	if got, _ := client.lastPayload(testTopics.DeviceAvailability("AABBCCDDEEFF0011")); got != entity.Offline {
		t.Errorf("published availability = %q, want offline", got)
	}

	sensor, _ := b.Store().Get("112233_t")
	if sensor.Availability != entity.Online {
		t.Errorf("sensor Availability = %q, want online", sensor.Availability)
	}
}

func TestBridge_ListFailureKeepsDevices(t *testing.T) {
	api := newMockAPI(h6159())
	b, _ := newTestBridge(t, api)
	ctx := context.Background()

	b.refreshDeviceList(ctx)
	api.mu.Lock()
	api.listErr = errors.New("gateway timeout")
	api.mu.Unlock()

	if b.refreshDeviceList(ctx) {
		t.Error("refreshDeviceList() = true on failure")
	}
	rec, _ := b.Store().Get("AABBCCDDEEFF0011")
	if rec.Availability != entity.Online {
		t.Errorf("Availability = %q after failed list, want online", rec.Availability)
	}
}

func TestBridge_ListPreservesState(t *testing.T) {
	api := newMockAPI(h6159())
	b, _ := newTestBridge(t, api)
	ctx := context.Background()

	b.refreshDeviceList(ctx)
	api.states["AA:BB:CC:DD:EE:FF:00:11"] = map[string]any{"brightness": 77.0}
	b.refreshEntities(ctx, []string{"AABBCCDDEEFF0011"})
	b.refreshDeviceList(ctx)

	rec, _ := b.Store().Get("AABBCCDDEEFF0011")
	if rec.Light.Brightness == nil || *rec.Light.Brightness != 77 {
		t.Errorf("brightness = %v after list refresh, want 77", rec.Light.Brightness)
	}
}

func TestBridge_ListRepublishesChangedDiscovery(t *testing.T) {
	bulb := goveeapi.Device{
		ID:   "AA:01",
		SKU:  "H6001",
		Name: "Bulb",
		Capabilities: []goveeapi.Capability{
			capability(TypeOnOff, InstancePowerSwitch, 0, 0),
		},
	}
	api := newMockAPI(bulb)
	b, client := newTestBridge(t, api)
	ctx := context.Background()
	topic := "homeassistant/light/govee2mqtt_AA01/config"

	b.refreshDeviceList(ctx)
	client.ClearPublished()

	// An unchanged list leaves the retained config alone.
	b.refreshDeviceList(ctx)
	if _, ok := client.lastPayload(topic); ok {
		t.Error("discovery republished for unchanged device")
	}

	bulb.Capabilities = append(bulb.Capabilities, capability(TypeColorSetting, InstanceColorRGB, 0, 16777215))
	api.setDevices(bulb)
	b.refreshDeviceList(ctx)

	rec, err := b.Store().Get("AA01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !rec.Component.HasColorMode(entity.ColorModeRGB) {
		t.Fatalf("SupportedColorModes = %v, want rgb", rec.Component.SupportedColorModes)
	}
	payload, ok := client.lastPayload(topic)
	if !ok {
		t.Fatal("discovery not republished after capability change")
	}
	if !strings.Contains(payload, `"rgb"`) {
		t.Errorf("discovery payload = %s, want rgb color mode", payload)
	}
}

// =============================================================================
// Refresh
// =============================================================================

func TestBridge_SensorSubEntitiesShareQuery(t *testing.T) {
	api := newMockAPI(sensorDevice())
	api.states["11:22:33"] = map[string]any{
		"online":            true,
		"sensorTemperature": 71.6,
		"sensorHumidity":    40.0,
	}
	b, client := newTestBridge(t, api)
	ctx := context.Background()

	b.refreshDeviceList(ctx)
	b.refreshNormal(ctx)

	if got := api.getQueried(); !slices.Equal(got, []string{"11:22:33"}) {
		t.Errorf("queried = %v, want one query for both sub-entities", got)
	}

	temp, _ := b.Store().Get("112233_t")
	if temp.Sensor.Temperature == nil || *temp.Sensor.Temperature != 71.6 || temp.Sensor.Humidity != nil {
		t.Errorf("temperature entity sensor = %+v", temp.Sensor)
	}
	hum, _ := b.Store().Get("112233_h")
	if hum.Sensor.Humidity == nil || *hum.Sensor.Humidity != 40 || hum.Sensor.Temperature != nil {
		t.Errorf("humidity entity sensor = %+v", hum.Sensor)
	}
	if temp.Meta == nil || temp.Meta.LastUpdate == nil {
		t.Error("last_update not set")
	}

	payload, ok := client.lastPayload(testTopics.DeviceState("112233_t", "sensor"))
	if !ok || !strings.Contains(payload, `"temperature":71.6`) || !strings.Contains(payload, "last_update") {
		t.Errorf("sensor state payload = %s", payload)
	}
}

func TestBridge_RefreshAppliesOffline(t *testing.T) {
	api := newMockAPI(h6159())
	api.states["AA:BB:CC:DD:EE:FF:00:11"] = map[string]any{"online": false, "powerSwitch": 0.0}
	b, client := newTestBridge(t, api)
	ctx := context.Background()

	b.refreshDeviceList(ctx)
	b.refreshNormal(ctx)

	rec, _ := b.Store().Get("AABBCCDDEEFF0011")
	if rec.Availability != entity.Offline {
		t.Errorf("Availability = %q, want offline", rec.Availability)
	}
	if rec.Light.State == nil || *rec.Light.State != entity.StateOff {
		t.Errorf("State = %v, want OFF", rec.Light.State)
	}
	if got, _ := client.lastPayload(testTopics.DeviceAvailability("AABBCCDDEEFF0011")); got != entity.Offline {
		t.Errorf("published availability = %q", got)
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestBridge_BoostLifecycle(t *testing.T) {
	api := newMockAPI(h6159())
	b, _ := newTestBridge(t, api)
	ctx := context.Background()
	id := "AABBCCDDEEFF0011"

	b.refreshDeviceList(ctx)

	b.handleMQTTMessage(testTopics.DeviceCommand(id, "light"), []byte(`{"brightness": 50}`))
	if !b.Boosted(id) {
		t.Fatal("entity not boosted after a command without state")
	}

	api.clearQueried()
	b.refreshNormal(ctx)
	if got := api.getQueried(); len(got) != 0 {
		t.Errorf("normal refresh queried %v, want boosted entity skipped", got)
	}

	b.refreshBoosted(ctx)
	if got := api.getQueried(); !slices.Equal(got, []string{"AA:BB:CC:DD:EE:FF:00:11"}) {
		t.Errorf("boosted refresh queried %v", got)
	}
	if b.Boosted(id) {
		t.Error("entity still boosted after boosted refresh")
	}

	api.clearQueried()
	b.refreshNormal(ctx)
	if got := api.getQueried(); len(got) != 1 {
		t.Errorf("normal refresh queried %v, want entity back in rotation", got)
	}
}

func TestBridge_CommandWithStateApplies(t *testing.T) {
	api := newMockAPI(h6159())
	b, client := newTestBridge(t, api)
	ctx := context.Background()
	id := "AABBCCDDEEFF0011"

	b.refreshDeviceList(ctx)
	b.boost.Add(id)
	api.setReply(map[string]any{InstanceColorRGB: float64(0xFF00FF)})

	b.handleMQTTMessage(testTopics.DeviceCommand(id, "light"), []byte(`{"state": "ON", "rgb": [255, 0, 255]}`))

	cmds := api.getCommands()
	if len(cmds) != 1 || cmds[0].Instance != InstanceColorRGB || cmds[0].Value != 0xFF00FF {
		t.Fatalf("commands = %+v, want one colorRgb command", cmds)
	}
	if b.Boosted(id) {
		t.Error("entity still boosted after a command returned state")
	}

	rec, _ := b.Store().Get(id)
	if !slices.Equal(rec.Light.RGBColor, []int{255, 0, 255}) {
		t.Errorf("RGBColor = %v, want [255 0 255]", rec.Light.RGBColor)
	}
	payload, _ := client.lastPayload(testTopics.DeviceState(id, "light"))
	if !strings.Contains(payload, `"rgb_color":[255,0,255]`) {
		t.Errorf("light state = %s", payload)
	}
}

func TestBridge_ModeCommand(t *testing.T) {
	d := goveeapi.Device{ID: "01:02", SKU: "H6042", Name: "Bar", Capabilities: []goveeapi.Capability{
		capability(TypeToggle, InstanceGradientToggle, 0, 0),
		capability(TypeToggle, InstanceNightlightToggle, 0, 0),
	}}
	api := newMockAPI(d)
	b, client := newTestBridge(t, api)
	ctx := context.Background()

	b.refreshDeviceList(ctx)
	b.handleMQTTMessage(testTopics.ModeCommand("0102", AttrNightlight), []byte("ON"))

	cmds := api.getCommands()
	if len(cmds) != 1 || cmds[0].Instance != InstanceNightlightToggle || cmds[0].Value != 1 {
		t.Errorf("commands = %+v", cmds)
	}

	rec, _ := b.Store().Get("0102")
	if *rec.Switch.Nightlight != entity.StateOn || *rec.Switch.Gradient != entity.StateOff {
		t.Errorf("switch = nightlight %s gradient %s", *rec.Switch.Nightlight, *rec.Switch.Gradient)
	}
	payload, _ := client.lastPayload(testTopics.DeviceState("0102", "switch"))
	if payload != `{"gradient":"OFF","nightlight":"ON"}` {
		t.Errorf("switch state = %s", payload)
	}

	// Switching off is reflected locally even though the reply is empty.
	b.handleMQTTMessage(testTopics.ModeCommand("0102", AttrNightlight), []byte("OFF"))
	payload, _ = client.lastPayload(testTopics.DeviceState("0102", "switch"))
	if payload != `{"gradient":"OFF","nightlight":"OFF"}` {
		t.Errorf("switch state after OFF = %s", payload)
	}
}

func TestBridge_CommandBatchDelay(t *testing.T) {
	api := newMockAPI()
	client := NewMockMQTTClient()
	opts := testOptions(client, api)
	opts.CommandDelay = 30 * time.Millisecond
	b, err := NewBridge(opts)
	if err != nil {
		t.Fatal(err)
	}

	rec := lightRecord(AttrGradient)
	cmds := EncodeCommands(Attributes{Brightness: entity.Ptr(1), Gradient: entity.Ptr(entity.StateOn)})

	start := time.Now()
	b.sendCommands(context.Background(), rec, cmds)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("batch of 2 took %v, want at least the command delay", elapsed)
	}
	if n := len(api.getCommands()); n != 2 {
		t.Errorf("sent %d commands, want 2", n)
	}
}

func TestBridge_CommandErrorsDropped(t *testing.T) {
	api := newMockAPI(h6159())
	b, _ := newTestBridge(t, api)
	b.refreshDeviceList(context.Background())

	messages := []struct {
		topic   string
		payload string
	}{
		{testTopics.DeviceCommand("AABBCCDDEEFF0011", "light"), `{not json`},
		{testTopics.DeviceCommand("UNKNOWN", "light"), `ON`},
		{testTopics.ModeCommand("AABBCCDDEEFF0011", AttrGradient), `ON`},
		{testTopics.DeviceCommand(entity.ServiceID, "light"), `ON`},
		{"govee2mqtt/nonsense", `ON`},
	}
	for _, m := range messages {
		b.handleMQTTMessage(m.topic, []byte(m.payload))
	}

	if n := len(api.getCommands()); n != 0 {
		t.Errorf("sent %d commands for malformed messages, want 0", n)
	}
	if b.boost.Len() != 0 {
		t.Errorf("boosted %d entities, want 0", b.boost.Len())
	}
}

// =============================================================================
// Service record
// =============================================================================

func TestBridge_ServiceIntervalCommands(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		payload string
		want    time.Duration
		wantErr bool
	}{
		{"device refresh", ServiceKeyDeviceRefresh, "45", 45 * time.Second, false},
		{"float payload", ServiceKeyDeviceRefresh, "12.0", 12 * time.Second, false},
		{"list refresh max", ServiceKeyDeviceListRefresh, "3600", time.Hour, false},
		{"boost max", ServiceKeySnapshotRefresh, "30", 30 * time.Second, false},
		{"zero", ServiceKeyDeviceRefresh, "0", time.Hour, true},
		{"boost too long", ServiceKeySnapshotRefresh, "31", time.Hour, true},
		{"list too long", ServiceKeyDeviceListRefresh, "3601", time.Hour, true},
		{"not a number", ServiceKeyDeviceRefresh, "soon", time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, client := newTestBridge(t, newMockAPI())
			if err := b.registerService(); err != nil {
				t.Fatal(err)
			}

			err := b.handleServiceCommand(tt.key, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("handleServiceCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidInterval) {
				t.Errorf("error = %v, want ErrInvalidInterval", err)
			}

			field, _, _ := b.intervals.byKey(tt.key)
			if got := time.Duration(field.Load()); got != tt.want {
				t.Errorf("interval = %v, want %v", got, tt.want)
			}
			if !tt.wantErr {
				got, _ := client.lastPayload(testTopics.ServiceState(tt.key))
				if got != strings.TrimSuffix(tt.payload, ".0") {
					t.Errorf("published %s = %q", tt.key, got)
				}
			}
		})
	}
}

func TestBridge_ServiceCommandViaMQTT(t *testing.T) {
	b, client := newTestBridge(t, newMockAPI())
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop(context.Background())

	client.SimulateMessage(
		testTopics.CommandSubscriptions()[2],
		testTopics.ServiceCommand(ServiceKeySnapshotRefresh),
		[]byte("7"),
	)
	if got := b.intervals.Boost(); got != 7*time.Second {
		t.Errorf("boost interval = %v, want 7s", got)
	}
}

func TestBridge_InitialDiscoveryServesEarlyRefresh(t *testing.T) {
	b, client := newTestBridge(t, newMockAPI(h6159()))
	ctx := context.Background()

	b.RefreshDeviceList()
	b.listPass(ctx)
	if !b.DiscoveryComplete() {
		t.Fatal("initial pass did not complete discovery")
	}
	if b.rediscover.Load() {
		t.Error("refresh request still pending after initial rediscovery")
	}

	client.ClearPublished()
	b.listPass(ctx)
	if _, ok := client.lastPayload("homeassistant/light/govee2mqtt_AABBCCDDEEFF0011/config"); ok {
		t.Error("second pass repeated the full rediscovery")
	}
}

func TestBridge_RefreshButton(t *testing.T) {
	b, _ := newTestBridge(t, newMockAPI())

	if err := b.handleServiceCommand(ServiceKeyRefreshList, []byte("refresh")); err != nil {
		t.Fatalf("handleServiceCommand() error = %v", err)
	}
	// A second press while one is pending is merged.
	if err := b.handleServiceCommand(ServiceKeyRefreshList, []byte("refresh")); err != nil {
		t.Fatalf("handleServiceCommand() error = %v", err)
	}
	if len(b.listNow) != 1 {
		t.Errorf("pending list refreshes = %d, want 1", len(b.listNow))
	}
	if !b.rediscover.Load() {
		t.Error("refresh button did not request a rediscovery")
	}

	if err := b.handleServiceCommand(ServiceKeyRefreshList, []byte("press")); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("wrong payload error = %v, want ErrInvalidPayload", err)
	}
	if err := b.handleServiceCommand("reboot", []byte("1")); !errors.Is(err, ErrUnknownServiceCommand) {
		t.Errorf("unknown key error = %v, want ErrUnknownServiceCommand", err)
	}
}

func TestBridge_ServiceRecord(t *testing.T) {
	api := newMockAPI()
	api.usage = goveeapi.Usage{
		APICalls:    9,
		RateLimited: true,
		LastCall:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	b, client := newTestBridge(t, api)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop(context.Background())

	rec, err := b.Store().Get(entity.ServiceID)
	if err != nil {
		t.Fatalf("Get(service) error = %v", err)
	}
	if rec.Type() != entity.ComponentBinarySensor {
		t.Errorf("service type = %q", rec.Type())
	}
	for _, key := range []string{
		ServiceKeyAPICalls, ServiceKeyRateLimited, ServiceKeyDeviceRefresh,
		ServiceKeyDeviceListRefresh, ServiceKeySnapshotRefresh, ServiceKeyRefreshList,
	} {
		if _, ok := rec.Modes[key]; !ok {
			t.Errorf("service component %q missing", key)
		}
	}
	if upper := rec.Modes[ServiceKeySnapshotRefresh].Max; upper == nil || *upper != 30 {
		t.Errorf("snapshot_refresh max = %v, want 30", upper)
	}

	waitFor(t, "service state", func() bool {
		got, _ := client.lastPayload(testTopics.ServiceState(ServiceKeyRateLimited))
		return got == "yes"
	})
	attrs, _ := client.lastPayload(testTopics.ServiceAttributes(ServiceKeyAPICalls))
	if !strings.Contains(attrs, `"last_api_call":"2026-03-01 09:30:00"`) {
		t.Errorf("api_calls attributes = %s", attrs)
	}
}

func TestBridge_HomeAssistantOnlineRediscovers(t *testing.T) {
	b, client := newTestBridge(t, newMockAPI(h6159()))
	b.refreshDeviceList(context.Background())
	client.ClearPublished()

	b.handleMQTTMessage("homeassistant/status", []byte("offline"))
	if n := len(client.GetPublished()); n != 0 {
		t.Errorf("published %d messages on offline, want 0", n)
	}

	b.handleMQTTMessage("homeassistant/status", []byte("online"))
	if _, ok := client.lastPayload("homeassistant/light/govee2mqtt_AABBCCDDEEFF0011/config"); !ok {
		t.Error("discovery not republished when Home Assistant came online")
	}
}

// =============================================================================
// Scheduler
// =============================================================================

func TestBridge_GuardRecoversPanic(t *testing.T) {
	b, _ := newTestBridge(t, newMockAPI())

	run := b.guard(context.Background(), "test", func(context.Context) error {
		panic("boom")
	})
	if err := run(); !errors.Is(err, ErrSchedulerPanic) {
		t.Errorf("guard() error = %v, want ErrSchedulerPanic", err)
	}
}

func TestEvery_ReadsIntervalEachIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	runs := 0
	interval := time.Hour

	done := make(chan error, 1)
	go func() {
		done <- every(ctx, func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return interval
		}, nil, func(context.Context) {
			mu.Lock()
			defer mu.Unlock()
			runs++
			interval = time.Millisecond
			if runs == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("every() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("every() did not pick up the shorter interval")
	}
}

func TestEvery_Wake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wake := make(chan struct{}, 1)
	ran := make(chan struct{}, 4)
	go every(ctx, func() time.Duration { return time.Hour }, wake, func(context.Context) {
		ran <- struct{}{}
	})

	<-ran
	wake <- struct{}{}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not trigger a run")
	}
}

func TestBridge_Heartbeat(t *testing.T) {
	api := newMockAPI(h6159())
	api.usage.APICalls = 4
	client := NewMockMQTTClient()
	stats := &mockStats{}

	opts := testOptions(client, api)
	opts.ReadyFile = filepath.Join(t.TempDir(), "ready")
	opts.Stats = stats
	b, err := NewBridge(opts)
	if err != nil {
		t.Fatal(err)
	}
	b.refreshDeviceList(context.Background())
	b.boost.Add("AABBCCDDEEFF0011")

	b.heartbeat(context.Background())

	if _, err := os.Stat(opts.ReadyFile); err != nil {
		t.Errorf("ready file not created: %v", err)
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	if len(stats.samples) != 1 {
		t.Fatalf("stats samples = %d, want 1", len(stats.samples))
	}
	got := stats.samples[0]
	if got.Entities != 1 || got.BoostedDevices != 1 || got.APICalls < 4 {
		t.Errorf("stats = %+v", got)
	}
}
