// Package idgen implements ports.IDGen using v4 UUIDs, the process-unique
// identifier source wired into cmd/agentruntimed for run ids and
// tool-call ids.
package idgen

import "github.com/google/uuid"

// UUIDGen generates random v4 UUID strings.
type UUIDGen struct{}

// New returns a UUIDGen.
func New() UUIDGen { return UUIDGen{} }

// NewID returns a fresh UUID string.
func (UUIDGen) NewID() string {
	return uuid.New().String()
}
