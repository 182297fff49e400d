package govee

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/mqtt"
)

// Service state keys. Each is published on its own topic under
// Topics.ServiceState.
const (
	ServiceKeyStatus            = "status"
	ServiceKeyAPICalls          = "api_calls"
	ServiceKeyRateLimited       = "rate_limited"
	ServiceKeyDeviceRefresh     = "device_refresh"
	ServiceKeyDeviceListRefresh = "device_list_refresh"
	ServiceKeySnapshotRefresh   = "snapshot_refresh"
	ServiceKeyRefreshList       = "refresh_device_list"
)

// Message is one rendered MQTT publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Renderer turns entity records into MQTT messages. It has no side
// effects; Publisher decides when its output is sent.
type Renderer struct {
	topics mqtt.Topics
}

// NewRenderer creates a renderer for the given topic layout.
func NewRenderer(topics mqtt.Topics) Renderer {
	return Renderer{topics: topics}
}

// Discovery renders the retained config payload of the primary component
// and of every mode component of rec.
func (r Renderer) Discovery(rec entity.Record) ([]Message, error) {
	if rec.Component == nil {
		return nil, nil
	}

	var msgs []Message
	add := func(c *entity.Component) error {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal %s discovery: %w", c.UniqueID, err)
		}
		msgs = append(msgs, Message{
			Topic:    r.topics.Discovery(string(c.Type), c.UniqueID),
			Payload:  payload,
			Retained: true,
		})
		return nil
	}

	if err := add(rec.Component); err != nil {
		return nil, err
	}
	for _, name := range sortedModes(rec.Modes) {
		if err := add(rec.Modes[name]); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Availability renders the availability payload, if one is known.
func (r Renderer) Availability(rec entity.Record) (Message, bool) {
	if rec.Availability == "" || rec.ID == entity.ServiceID {
		return Message{}, false
	}
	return Message{
		Topic:    r.topics.DeviceAvailability(rec.ID),
		Payload:  []byte(rec.Availability),
		Retained: true,
	}, true
}

// State renders the state payloads of rec, one per populated block.
// last_update is injected into the light and sensor payloads.
func (r Renderer) State(rec entity.Record) ([]Message, error) {
	if rec.ID == entity.ServiceID {
		return r.serviceState(rec)
	}

	var msgs []Message
	add := func(category string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s %s state: %w", rec.ID, category, err)
		}
		msgs = append(msgs, Message{Topic: r.topics.DeviceState(rec.ID, category), Payload: payload})
		return nil
	}

	if rec.Light != nil {
		err := add(string(entity.ComponentLight), struct {
			*entity.LightState
			*entity.MetaState
		}{rec.Light, rec.Meta})
		if err != nil {
			return nil, err
		}
	}
	if rec.Switch != nil {
		if err := add(string(entity.ComponentSwitch), rec.Switch); err != nil {
			return nil, err
		}
	}
	if rec.Sensor != nil {
		err := add(string(entity.ComponentSensor), struct {
			*entity.SensorState
			*entity.MetaState
		}{rec.Sensor, rec.Meta})
		if err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

type apiCallAttributes struct {
	APICalls    int    `json:"api_calls"`
	LastAPICall string `json:"last_api_call,omitempty"`
}

func (r Renderer) serviceState(rec entity.Record) ([]Message, error) {
	msgs := []Message{{
		Topic:    r.topics.ServiceStatus(),
		Payload:  []byte(entity.Online),
		Retained: true,
	}}

	s := rec.Service
	if s == nil {
		return msgs, nil
	}

	text := func(key, value string) {
		msgs = append(msgs, Message{Topic: r.topics.ServiceState(key), Payload: []byte(value), Retained: true})
	}

	if s.APICalls != nil {
		text(ServiceKeyAPICalls, strconv.Itoa(*s.APICalls))

		attrs := apiCallAttributes{APICalls: *s.APICalls}
		if s.LastAPICall != nil {
			attrs.LastAPICall = *s.LastAPICall
		}
		payload, err := json.Marshal(attrs)
		if err != nil {
			return nil, fmt.Errorf("marshal api call attributes: %w", err)
		}
		msgs = append(msgs, Message{
			Topic:    r.topics.ServiceAttributes(ServiceKeyAPICalls),
			Payload:  payload,
			Retained: true,
		})
	}
	if s.RateLimited != nil {
		text(ServiceKeyRateLimited, yesNo(*s.RateLimited))
	}
	if s.DeviceRefresh != nil {
		text(ServiceKeyDeviceRefresh, strconv.Itoa(*s.DeviceRefresh))
	}
	if s.DeviceListRefresh != nil {
		text(ServiceKeyDeviceListRefresh, strconv.Itoa(*s.DeviceListRefresh))
	}
	if s.SnapshotRefresh != nil {
		text(ServiceKeySnapshotRefresh, strconv.Itoa(*s.SnapshotRefresh))
	}
	return msgs, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func sortedModes(modes map[string]*entity.Component) []string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// =============================================================================
// Publisher
// =============================================================================

// Publisher sends rendered messages for entities in the store. State and
// availability are withheld until the entity's discovery has been sent.
type Publisher struct {
	client   MQTTClient
	store    *entity.Store
	renderer Renderer
	qos      byte

	// discoveryMu serialises discovery so two loops cannot both see an
	// entity as undiscovered and publish it twice.
	discoveryMu sync.Mutex
}

// NewPublisher creates a publisher.
func NewPublisher(client MQTTClient, store *entity.Store, topics mqtt.Topics, qos byte) *Publisher {
	return &Publisher{
		client:   client,
		store:    store,
		renderer: NewRenderer(topics),
		qos:      qos,
	}
}

// Discovery publishes the discovery payloads of id and marks it
// discovered. force republishes an entity that was already discovered.
func (p *Publisher) Discovery(id string, force bool) error {
	p.discoveryMu.Lock()
	defer p.discoveryMu.Unlock()

	rec, err := p.store.Get(id)
	if err != nil {
		return err
	}
	if rec.Discovered() && !force {
		return nil
	}

	msgs, err := p.renderer.Discovery(rec)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.send(msgs...); err != nil {
		return err
	}

	if !rec.Discovered() {
		if _, err := p.store.Upsert(id, entity.Patch{Discovered: entity.Ptr(true)}); err != nil {
			return err
		}
	}
	return nil
}

// DiscoveryChanged reports whether after renders different discovery
// payloads than before.
func (p *Publisher) DiscoveryChanged(before, after entity.Record) bool {
	was, err := p.renderer.Discovery(before)
	if err != nil {
		return true
	}
	now, err := p.renderer.Discovery(after)
	if err != nil || len(was) != len(now) {
		return true
	}
	for i := range was {
		if was[i].Topic != now[i].Topic || !bytes.Equal(was[i].Payload, now[i].Payload) {
			return true
		}
	}
	return false
}

// Availability publishes the availability of id if it is discovered.
func (p *Publisher) Availability(id string) error {
	rec, err := p.store.Get(id)
	if err != nil {
		return err
	}
	if !rec.Discovered() {
		return nil
	}
	msg, ok := p.renderer.Availability(rec)
	if !ok {
		return nil
	}
	return p.send(msg)
}

// State publishes the state of id if it is discovered.
func (p *Publisher) State(id string) error {
	rec, err := p.store.Get(id)
	if err != nil {
		return err
	}
	if !rec.Discovered() {
		return nil
	}
	msgs, err := p.renderer.State(rec)
	if err != nil {
		return err
	}
	return p.send(msgs...)
}

// All publishes discovery (when not yet sent), availability and state.
func (p *Publisher) All(id string) error {
	if err := p.Discovery(id, false); err != nil {
		return err
	}
	return errors.Join(p.Availability(id), p.State(id))
}

func (p *Publisher) send(msgs ...Message) error {
	var errs []error
	for _, m := range msgs {
		if err := p.client.Publish(m.Topic, m.Payload, p.qos, m.Retained); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", m.Topic, err))
		}
	}
	return errors.Join(errs...)
}
