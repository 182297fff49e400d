package entity

import "errors"

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("entity: not found")

	// ErrEmptyID is returned when an upsert has no entity id.
	ErrEmptyID = errors.New("entity: empty id")

	// ErrMissingIdentity is returned when the first patch for a device
	// entity does not carry its vendor raw id and sku.
	ErrMissingIdentity = errors.New("entity: raw id and sku required on first upsert")

	// ErrIdentityChanged is returned when a patch tries to rebind an entity
	// to a different vendor device.
	ErrIdentityChanged = errors.New("entity: raw id and sku are immutable")

	// ErrComponentTypeChanged is returned when a patch tries to change the
	// component type of a classified entity.
	ErrComponentTypeChanged = errors.New("entity: component type is immutable")
)
