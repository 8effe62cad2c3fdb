package state

import "github.com/roach88/synq/internal/ir"

// Auth is the stable identity/secret pair exchanged with the authority.
type Auth struct {
	ID    string `json:"apiId" msgpack:"apiId"`
	Token string `json:"apiToken" msgpack:"apiToken"`
}

// Present reports whether both halves of the credentials are set.
func (a Auth) Present() bool {
	return a.ID != "" && a.Token != ""
}

// SyncBuffers holds the two disjoint operation buffers.
type SyncBuffers struct {
	// Queue holds operations not sent yet.
	Queue []ir.Operation `json:"queue" msgpack:"queue"`
	// Sent holds operations sent but not acknowledged.
	Sent []ir.Operation `json:"sent" msgpack:"sent"`
}

// Settings is the persisted sync bookkeeping.
type Settings struct {
	Auth     Auth        `json:"auth" msgpack:"auth"`
	Sync     SyncBuffers `json:"sync" msgpack:"sync"`
	Fetching bool        `json:"fetching" msgpack:"fetching"`
	Online   bool        `json:"online" msgpack:"online"`
	// Batches counts the batches dispatched by this install.
	Batches int64 `json:"batches,omitempty" msgpack:"batches,omitempty"`
}

// DefaultSettings returns the settings of a fresh install: empty buffers,
// no credentials, offline.
func DefaultSettings() Settings {
	return Settings{
		Sync: SyncBuffers{
			Queue: []ir.Operation{},
			Sent:  []ir.Operation{},
		},
	}
}

// normalize makes nil buffers empty so the encoded form is stable.
func (s *Settings) normalize() {
	if s.Sync.Queue == nil {
		s.Sync.Queue = []ir.Operation{}
	}
	if s.Sync.Sent == nil {
		s.Sync.Sent = []ir.Operation{}
	}
}
