package govee

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nerrad567/govee2mqtt/internal/entity"
)

func seedLight(t *testing.T, store *entity.Store) string {
	t.Helper()
	build := NewBuilder(testTopics).BuildLight(h6159(), entity.Record{})
	build.Patch.Availability = entity.Online
	if _, err := store.Upsert(build.ID, build.Patch); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return build.ID
}

func TestPublisher_GatesUntilDiscovered(t *testing.T) {
	store := entity.NewStore()
	client := NewMockMQTTClient()
	p := NewPublisher(client, store, testTopics, 1)
	id := seedLight(t, store)

	if err := p.State(id); err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if err := p.Availability(id); err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	if n := len(client.GetPublished()); n != 0 {
		t.Fatalf("published %d messages before discovery, want 0", n)
	}

	if err := p.Discovery(id, false); err != nil {
		t.Fatalf("Discovery() error = %v", err)
	}
	if !store.IsDiscovered(id) {
		t.Fatal("entity not marked discovered")
	}

	pub := client.GetPublished()
	if len(pub) != 1 {
		t.Fatalf("published %d messages, want 1 discovery", len(pub))
	}
	if pub[0].Topic != "homeassistant/light/govee2mqtt_AABBCCDDEEFF0011/config" || !pub[0].Retained {
		t.Errorf("discovery = %s retained=%v", pub[0].Topic, pub[0].Retained)
	}
	if pub[0].QoS != 1 {
		t.Errorf("QoS = %d, want 1", pub[0].QoS)
	}

	client.ClearPublished()
	if err := p.Availability(id); err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	if err := p.State(id); err != nil {
		t.Fatalf("State() error = %v", err)
	}
	pub = client.GetPublished()
	if len(pub) != 2 {
		t.Fatalf("published %d messages after discovery, want 2", len(pub))
	}
	if pub[0].Topic != testTopics.DeviceAvailability(id) || string(pub[0].Payload) != entity.Online {
		t.Errorf("availability = %s %s", pub[0].Topic, pub[0].Payload)
	}
}

func TestPublisher_DiscoveryOnce(t *testing.T) {
	store := entity.NewStore()
	client := NewMockMQTTClient()
	p := NewPublisher(client, store, testTopics, 0)
	id := seedLight(t, store)

	for i := 0; i < 3; i++ {
		if err := p.Discovery(id, false); err != nil {
			t.Fatalf("Discovery() error = %v", err)
		}
	}
	if n := len(client.GetPublished()); n != 1 {
		t.Errorf("published %d discovery messages, want 1", n)
	}

	if err := p.Discovery(id, true); err != nil {
		t.Fatalf("Discovery(force) error = %v", err)
	}
	if n := len(client.GetPublished()); n != 2 {
		t.Errorf("published %d messages after forced rediscovery, want 2", n)
	}
}

func TestPublisher_UnknownEntity(t *testing.T) {
	p := NewPublisher(NewMockMQTTClient(), entity.NewStore(), testTopics, 0)
	if err := p.State("missing"); err == nil {
		t.Error("State(missing) error = nil, want not found")
	}
}

func TestRenderer_LightState(t *testing.T) {
	rec := entity.Record{
		ID: "AABB",
		Light: &entity.LightState{
			State:    entity.Ptr(entity.StateOn),
			RGBColor: []int{255, 0, 255},
			RGBMax:   entity.Ptr(MaxRGB),
		},
		Switch: &entity.SwitchState{Gradient: entity.Ptr(entity.StateOff)},
		Meta:   &entity.MetaState{LastUpdate: entity.Ptr("2026-03-01 10:00:00")},
	}

	msgs, err := NewRenderer(testTopics).State(rec)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("State() = %d messages, want light and switch", len(msgs))
	}

	if msgs[0].Topic != "govee2mqtt/devices/govee2mqtt_AABB/light" {
		t.Errorf("light topic = %q", msgs[0].Topic)
	}
	var light map[string]any
	if err := json.Unmarshal(msgs[0].Payload, &light); err != nil {
		t.Fatal(err)
	}
	if light["state"] != "ON" || light["last_update"] != "2026-03-01 10:00:00" {
		t.Errorf("light payload = %s", msgs[0].Payload)
	}
	if _, ok := light["brightness"]; ok {
		t.Errorf("light payload has unknown brightness: %s", msgs[0].Payload)
	}

	if msgs[1].Topic != "govee2mqtt/devices/govee2mqtt_AABB/switch" || string(msgs[1].Payload) != `{"gradient":"OFF"}` {
		t.Errorf("switch = %s %s", msgs[1].Topic, msgs[1].Payload)
	}
}

func TestRenderer_ServiceState(t *testing.T) {
	rec := entity.Record{
		ID: entity.ServiceID,
		Service: &entity.ServiceState{
			APICalls:          entity.Ptr(17),
			LastAPICall:       entity.Ptr("2026-03-01 09:59:00"),
			RateLimited:       entity.Ptr(true),
			DeviceRefresh:     entity.Ptr(30),
			DeviceListRefresh: entity.Ptr(3600),
			SnapshotRefresh:   entity.Ptr(5),
		},
	}

	msgs, err := NewRenderer(testTopics).State(rec)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}

	got := make(map[string]string)
	for _, m := range msgs {
		got[m.Topic] = string(m.Payload)
		if !m.Retained {
			t.Errorf("%s should be retained", m.Topic)
		}
	}
	want := map[string]string{
		"govee2mqtt/status/status":                "online",
		"govee2mqtt/service/api_calls":            "17",
		"govee2mqtt/service/rate_limited":         "yes",
		"govee2mqtt/service/device_refresh":       "30",
		"govee2mqtt/service/device_list_refresh":  "3600",
		"govee2mqtt/service/snapshot_refresh":     "5",
		"govee2mqtt/service/api_calls/attributes": `{"api_calls":17,"last_api_call":"2026-03-01 09:59:00"}`,
	}
	for topic, payload := range want {
		if got[topic] != payload {
			t.Errorf("%s = %q, want %q", topic, got[topic], payload)
		}
	}
	if len(got) != len(want) {
		t.Errorf("got %d topics, want %d", len(got), len(want))
	}
}

func TestRenderer_DiscoveryIncludesModes(t *testing.T) {
	rec := lightRecord(AttrNightlight, AttrGradient)
	rec.Component.UniqueID = "govee2mqtt_AABB"
	rec.Modes[AttrGradient].UniqueID = "govee2mqtt_AABB_gradient"
	rec.Modes[AttrNightlight].UniqueID = "govee2mqtt_AABB_nightlight"

	msgs, err := NewRenderer(testTopics).Discovery(rec)
	if err != nil {
		t.Fatalf("Discovery() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Discovery() = %d messages, want 3", len(msgs))
	}
	if !strings.HasPrefix(msgs[1].Topic, "homeassistant/switch/govee2mqtt_AABB_gradient") {
		t.Errorf("mode topic = %q", msgs[1].Topic)
	}
	if strings.Contains(string(msgs[0].Payload), `"Type"`) {
		t.Errorf("discovery payload leaks component type: %s", msgs[0].Payload)
	}
}
