package state

import (
	"context"
	"fmt"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/store"
)

// Default storage keys.
const (
	DefaultUserKey     = "synq-user"
	DefaultSettingsKey = "synq-settings"
)

// Persister reads and writes the two snapshots.
type Persister struct {
	kv          store.KV
	codec       Codec
	userKey     string
	settingsKey string
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithCodec selects the snapshot codec (default JSON).
func WithCodec(c Codec) PersisterOption {
	return func(p *Persister) {
		if c != nil {
			p.codec = c
		}
	}
}

// WithKeys overrides the storage keys.
func WithKeys(userKey, settingsKey string) PersisterOption {
	return func(p *Persister) {
		p.userKey = userKey
		p.settingsKey = settingsKey
	}
}

// NewPersister creates a Persister over kv.
func NewPersister(kv store.KV, opts ...PersisterOption) *Persister {
	p := &Persister{
		kv:          kv,
		codec:       JSONCodec{},
		userKey:     DefaultUserKey,
		settingsKey: DefaultSettingsKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SaveState writes the state snapshot. Transient fields are not part of
// the snapshot.
func (p *Persister) SaveState(ctx context.Context, s *State) error {
	data, err := p.codec.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := p.kv.Set(ctx, p.userKey, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState replaces the contents of s with the stored snapshot, in place.
// Returns false, leaving s untouched, when nothing is stored.
func (p *Persister) LoadState(ctx context.Context, s *State) (bool, error) {
	data, ok, err := p.kv.Get(ctx, p.userKey)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return false, nil
	}

	var fields map[string]any
	if err := p.codec.Unmarshal(data, &fields); err != nil {
		return false, fmt.Errorf("decode state: %w", err)
	}
	for _, k := range transientFields {
		delete(fields, k)
	}
	if err := s.Replace(fields); err != nil {
		return false, fmt.Errorf("restore state: %w", err)
	}
	return true, nil
}

// SaveSettings writes the settings snapshot.
func (p *Persister) SaveSettings(ctx context.Context, st Settings) error {
	st.normalize()
	data, err := p.codec.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := p.kv.Set(ctx, p.settingsKey, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadSettings reads the settings snapshot. Fetching is always false in the
// result: a process that died mid-request must not stay wedged.
func (p *Persister) LoadSettings(ctx context.Context) (Settings, bool, error) {
	data, ok, err := p.kv.Get(ctx, p.settingsKey)
	if err != nil {
		return Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return DefaultSettings(), false, nil
	}

	st := DefaultSettings()
	if err := p.codec.Unmarshal(data, &st); err != nil {
		return Settings{}, false, fmt.Errorf("decode settings: %w", err)
	}
	st.normalize()
	st.Fetching = false
	return st, true, nil
}

// Restore loads the settings, writing defaults when none are stored, and
// loads the state into s.
func (p *Persister) Restore(ctx context.Context, s *State) (Settings, error) {
	st, ok, err := p.LoadSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		if err := p.SaveSettings(ctx, st); err != nil {
			return Settings{}, err
		}
	}
	if _, err := p.LoadState(ctx, s); err != nil {
		return Settings{}, err
	}
	return st, nil
}

// Clear wipes the underlying store.
func (p *Persister) Clear(ctx context.Context) error {
	if err := p.kv.Clear(ctx); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	return nil
}

func normalizeOperations(ops []ir.Operation) {
	for i := range ops {
		if ops[i].Params != nil {
			normalizeNumbers(ops[i].Params)
		}
		if ops[i].Query != nil {
			normalizeNumbers(ops[i].Query)
		}
		if ops[i].Body != nil {
			normalizeNumbers(ops[i].Body)
		}
	}
}
