package entity

import (
	"fmt"
	"slices"
	"sync"
)

// Patch is a partial record. Nil blocks and fields are left untouched.
type Patch struct {
	RawID      string
	SKU        string
	Discovered *bool

	Component *Component
	Modes     map[string]*Component

	Availability string

	Light   *LightState
	Switch  *SwitchState
	Sensor  *SensorState
	Meta    *MetaState
	Service *ServiceState
}

// Store is the merge-based entity store shared by the refresh loops and
// the command path. Every Upsert is applied atomically under one lock.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Upsert merges patch into the record for id and returns the result.
//
// Leaf values in the patch overwrite stored ones, blocks and modes are
// merged key by key, and lists are replaced. A device record must be
// created with its vendor raw id and sku; the service record is exempt.
// On error the stored record is unchanged.
func (s *Store) Upsert(id string, patch Patch) (Record, error) {
	if id == "" {
		return Record{}, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	var rec Record
	if ok {
		rec = existing.clone()
	} else {
		rec = Record{ID: id}
	}

	if err := rec.apply(patch, !ok); err != nil {
		return Record{}, fmt.Errorf("upserting %s: %w", id, err)
	}

	s.records[id] = &rec
	return rec.clone(), nil
}

func (r *Record) apply(p Patch, created bool) error {
	if err := r.applyIdentity(p, created); err != nil {
		return err
	}

	if p.Component != nil {
		if r.Component == nil {
			r.Component = &Component{Type: p.Component.Type}
		} else if p.Component.Type != "" && p.Component.Type != r.Component.Type {
			return fmt.Errorf("%w: %s to %s", ErrComponentTypeChanged, r.Component.Type, p.Component.Type)
		}
		r.Component.merge(p.Component)
	}

	for name, m := range p.Modes {
		if m == nil {
			continue
		}
		if r.Modes == nil {
			r.Modes = make(map[string]*Component)
		}
		cur, ok := r.Modes[name]
		if !ok {
			cur = &Component{Type: m.Type}
			r.Modes[name] = cur
		} else if m.Type != "" && m.Type != cur.Type {
			return fmt.Errorf("%w: mode %s %s to %s", ErrComponentTypeChanged, name, cur.Type, m.Type)
		}
		cur.merge(m)
	}

	if p.Discovered != nil {
		r.Internal.Discovered = *p.Discovered
	}
	mergeString(&r.Availability, p.Availability)

	if p.Light != nil {
		if r.Light == nil {
			r.Light = &LightState{}
		}
		r.Light.merge(p.Light)
	}
	if p.Switch != nil {
		if r.Switch == nil {
			r.Switch = &SwitchState{}
		}
		r.Switch.merge(p.Switch)
	}
	if p.Sensor != nil {
		if r.Sensor == nil {
			r.Sensor = &SensorState{}
		}
		r.Sensor.merge(p.Sensor)
	}
	if p.Meta != nil {
		if r.Meta == nil {
			r.Meta = &MetaState{}
		}
		r.Meta.merge(p.Meta)
	}
	if p.Service != nil {
		if r.Service == nil {
			r.Service = &ServiceState{}
		}
		r.Service.merge(p.Service)
	}

	return nil
}

func (r *Record) applyIdentity(p Patch, created bool) error {
	if r.ID == ServiceID {
		return nil
	}
	if created {
		if p.RawID == "" || p.SKU == "" {
			return ErrMissingIdentity
		}
		r.Internal.RawID = p.RawID
		r.Internal.SKU = p.SKU
		return nil
	}
	if (p.RawID != "" && p.RawID != r.Internal.RawID) || (p.SKU != "" && p.SKU != r.Internal.SKU) {
		return ErrIdentityChanged
	}
	return nil
}

// Get returns a copy of the record for id, or ErrNotFound. A missing
// record means the entity is not yet discovered.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.clone(), nil
}

// IsDiscovered reports whether id exists and its discovery was published.
func (s *Store) IsDiscovered(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return ok && rec.Internal.Discovered
}

// IDs returns all entity ids in sorted order, the service record included.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// DeviceIDs returns the sorted ids of every record bound to a vendor device.
func (s *Store) DeviceIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id, rec := range s.records {
		if rec.Internal.RawID != "" {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
