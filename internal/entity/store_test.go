package entity

import (
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
)

func lightPatch() Patch {
	return Patch{
		RawID: "AA:BB",
		SKU:   "H6159",
		Component: &Component{
			Type:                      ComponentLight,
			Name:                      "Desk Strip",
			SupportedColorModes:       []string{ColorModeBrightness},
			BrightnessScale:           254,
			BrightnessCommandTopic:    "govee2mqtt/light/govee2mqtt_AABB/set",
			BrightnessCommandTemplate: `{"brightness": {{ value }}}`,
		},
		Light: &LightState{Brightness: Ptr(0)},
	}
}

func TestStore_UpsertCreatesAndGets(t *testing.T) {
	s := NewStore()

	rec, err := s.Upsert("AABB", lightPatch())
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if rec.ID != "AABB" || rec.Internal.RawID != "AA:BB" || rec.Internal.SKU != "H6159" {
		t.Errorf("Upsert() = %+v", rec)
	}
	if rec.Discovered() {
		t.Error("new record is discovered")
	}

	got, err := s.Get("AABB")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}
}

func TestStore_UpsertIdempotent(t *testing.T) {
	s := NewStore()

	first, err := s.Upsert("AABB", lightPatch())
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Upsert("AABB", lightPatch())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated upsert changed the record:\n%+v\n%+v", first, second)
	}
}

func TestStore_UpsertNonDestructive(t *testing.T) {
	s := NewStore()
	if _, err := s.Upsert("AABB", lightPatch()); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Upsert("AABB", Patch{
		Availability: Online,
		Light:        &LightState{State: Ptr(StateOn)},
		Meta:         &MetaState{LastUpdate: Ptr("2026-01-02 03:04:05")},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if rec.Light.Brightness == nil || *rec.Light.Brightness != 0 {
		t.Errorf("Brightness = %v, want untouched 0", rec.Light.Brightness)
	}
	if *rec.Light.State != StateOn {
		t.Errorf("State = %q, want ON", *rec.Light.State)
	}
	if rec.Component.Name != "Desk Strip" || rec.Component.BrightnessScale != 254 {
		t.Errorf("Component = %+v, want untouched", rec.Component)
	}
	if rec.Availability != Online {
		t.Errorf("Availability = %q, want online", rec.Availability)
	}

	// An empty availability leaves the stored one alone.
	rec, _ = s.Upsert("AABB", Patch{Light: &LightState{Brightness: Ptr(10)}})
	if rec.Availability != Online || *rec.Light.State != StateOn || *rec.Light.Brightness != 10 {
		t.Errorf("after partial upsert: %+v %+v", rec.Availability, rec.Light)
	}
}

func TestStore_ListsReplaced(t *testing.T) {
	s := NewStore()
	p := lightPatch()
	p.Light.RGBColor = []int{1, 2, 3}
	if _, err := s.Upsert("AABB", p); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Upsert("AABB", Patch{Light: &LightState{RGBColor: []int{9, 8, 7}}})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rec.Light.RGBColor, []int{9, 8, 7}) {
		t.Errorf("RGBColor = %v, want [9 8 7]", rec.Light.RGBColor)
	}
}

func TestStore_ColorModeReplacementClearsBrightness(t *testing.T) {
	s := NewStore()
	if _, err := s.Upsert("AABB", lightPatch()); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Upsert("AABB", Patch{Component: &Component{
		Type:                ComponentLight,
		SupportedColorModes: []string{ColorModeRGB},
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !slices.Equal(rec.Component.SupportedColorModes, []string{ColorModeRGB}) {
		t.Errorf("SupportedColorModes = %v, want [rgb]", rec.Component.SupportedColorModes)
	}
	if rec.Component.BrightnessScale != 0 || rec.Component.BrightnessCommandTopic != "" {
		t.Errorf("brightness fields kept after brightness left the mode set: %+v", rec.Component)
	}
}

func TestStore_ModesMerged(t *testing.T) {
	s := NewStore()
	p := lightPatch()
	p.Modes = map[string]*Component{
		"gradient": {Type: ComponentSwitch, Name: "Gradient"},
	}
	if _, err := s.Upsert("AABB", p); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Upsert("AABB", Patch{Modes: map[string]*Component{
		"nightlight": {Type: ComponentSwitch, Name: "Nightlight"},
		"gradient":   {Icon: "mdi:gradient-vertical"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Modes) != 2 {
		t.Fatalf("Modes = %v, want 2 entries", rec.Modes)
	}
	if g := rec.Modes["gradient"]; g.Name != "Gradient" || g.Icon != "mdi:gradient-vertical" {
		t.Errorf("gradient mode = %+v", g)
	}
}

func TestStore_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   bool
		id      string
		patch   Patch
		wantErr error
	}{
		{
			name:    "empty id",
			id:      "",
			patch:   lightPatch(),
			wantErr: ErrEmptyID,
		},
		{
			name:    "new device without identity",
			id:      "CCDD",
			patch:   Patch{Availability: Online},
			wantErr: ErrMissingIdentity,
		},
		{
			name:    "rebind raw id",
			setup:   true,
			id:      "AABB",
			patch:   Patch{RawID: "FF:FF"},
			wantErr: ErrIdentityChanged,
		},
		{
			name:    "rebind sku",
			setup:   true,
			id:      "AABB",
			patch:   Patch{SKU: "H6001"},
			wantErr: ErrIdentityChanged,
		},
		{
			name:    "change component type",
			setup:   true,
			id:      "AABB",
			patch:   Patch{Component: &Component{Type: ComponentSwitch}},
			wantErr: ErrComponentTypeChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			if tt.setup {
				if _, err := s.Upsert("AABB", lightPatch()); err != nil {
					t.Fatal(err)
				}
			}
			before, _ := s.Get(tt.id)

			_, err := s.Upsert(tt.id, tt.patch)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Upsert() error = %v, want %v", err, tt.wantErr)
			}

			after, _ := s.Get(tt.id)
			if !reflect.DeepEqual(before, after) {
				t.Errorf("failed upsert changed the record:\n%+v\n%+v", before, after)
			}
		})
	}
}

func TestStore_ServiceExemptFromIdentity(t *testing.T) {
	s := NewStore()

	_, err := s.Upsert(ServiceID, Patch{Service: &ServiceState{APICalls: Ptr(3)}})
	if err != nil {
		t.Fatalf("Upsert(service) error = %v", err)
	}
	if ids := s.DeviceIDs(); len(ids) != 0 {
		t.Errorf("DeviceIDs() = %v, want service excluded", ids)
	}
	if ids := s.IDs(); !slices.Equal(ids, []string{ServiceID}) {
		t.Errorf("IDs() = %v, want [service]", ids)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if s.IsDiscovered("nope") {
		t.Error("IsDiscovered() = true for a missing entity")
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	p := lightPatch()
	p.Light.RGBColor = []int{1, 2, 3}
	p.Modes = map[string]*Component{"gradient": {Type: ComponentSwitch, Name: "Gradient"}}
	if _, err := s.Upsert("AABB", p); err != nil {
		t.Fatal(err)
	}

	rec, _ := s.Get("AABB")
	rec.Light.RGBColor[0] = 99
	rec.Component.SupportedColorModes[0] = "bogus"
	rec.Modes["gradient"].Name = "changed"
	delete(rec.Modes, "gradient")

	again, _ := s.Get("AABB")
	if again.Light.RGBColor[0] != 1 {
		t.Error("RGBColor shares memory with the store")
	}
	if again.Component.SupportedColorModes[0] != ColorModeBrightness {
		t.Error("SupportedColorModes shares memory with the store")
	}
	if m, ok := again.Modes["gradient"]; !ok || m.Name != "Gradient" {
		t.Error("Modes share memory with the store")
	}
}

func TestStore_Discovered(t *testing.T) {
	s := NewStore()
	if _, err := s.Upsert("AABB", lightPatch()); err != nil {
		t.Fatal(err)
	}
	if s.IsDiscovered("AABB") {
		t.Error("IsDiscovered() = true before marking")
	}

	if _, err := s.Upsert("AABB", Patch{Discovered: Ptr(true)}); err != nil {
		t.Fatal(err)
	}
	if !s.IsDiscovered("AABB") {
		t.Error("IsDiscovered() = false after marking")
	}

	// Patches that do not mention the flag keep it.
	rec, _ := s.Upsert("AABB", lightPatch())
	if !rec.Discovered() {
		t.Error("Discovered flag lost on a later upsert")
	}
}

func TestStore_DeviceIDsSorted(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"CC", "AA", "BB"} {
		p := lightPatch()
		p.RawID = id
		if _, err := s.Upsert(id, p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Upsert(ServiceID, Patch{}); err != nil {
		t.Fatal(err)
	}

	if got := s.DeviceIDs(); !slices.Equal(got, []string{"AA", "BB", "CC"}) {
		t.Errorf("DeviceIDs() = %v", got)
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	s := NewStore()
	if _, err := s.Upsert("AABB", lightPatch()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = s.Upsert("AABB", Patch{Light: &LightState{Brightness: Ptr(i)}})
			} else {
				_, _ = s.Upsert("AABB", Patch{Switch: &SwitchState{Gradient: Ptr(StateOn)}})
			}
			_, _ = s.Get("AABB")
		}()
	}
	wg.Wait()

	rec, _ := s.Get("AABB")
	if rec.Switch == nil || *rec.Switch.Gradient != StateOn || rec.Light.Brightness == nil {
		t.Errorf("lost a block under concurrent upserts: %+v %+v", rec.Switch, rec.Light)
	}
}
