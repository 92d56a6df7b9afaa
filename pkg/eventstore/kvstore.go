// Copyright 2025 Certen Protocol

package eventstore

import (
	"encoding/json"
	"fmt"
)

// WithKV attaches a durable KV backend (see pkg/kvdb.KVAdapter) that every
// Append mirrors to, keyed by stream ID and stream version. It does not
// replace the in-memory index; it makes the store's contents survive a
// restart when paired with Load.
func (s *Store) WithKV(kv KV) *Store {
	s.kv = kv
	return s
}

func eventKey(streamID string, version int64) []byte {
	return []byte(fmt.Sprintf("evt/%s/%020d", streamID, version))
}

func (s *Store) persist(e StoredEvent) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.kv.Set(eventKey(e.StreamID, e.StreamVersion), raw)
}

// Load replays a single stream's events back out of the attached KV
// backend into the in-memory index, up to and including the stream's
// reported version. Used at startup to rehydrate a durable store.
func (s *Store) Load(streamID string, upToVersion int64) error {
	if s.kv == nil {
		return fmt.Errorf("eventstore: Load requires WithKV")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &streamState{version: -1, lastHash: GenesisHash}
	for v := int64(0); v <= upToVersion; v++ {
		raw, err := s.kv.Get(eventKey(streamID, v))
		if err != nil {
			return fmt.Errorf("eventstore: load %s@%d: %w", streamID, v, err)
		}
		if raw == nil {
			break
		}
		var e StoredEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("eventstore: decode %s@%d: %w", streamID, v, err)
		}
		st.version = e.StreamVersion
		st.lastHash = e.Hash
		st.events = append(st.events, e)
		for int64(len(s.global)) <= e.GlobalPosition {
			s.global = append(s.global, StoredEvent{})
		}
		s.global[e.GlobalPosition] = e
	}
	if st.version >= 0 {
		s.streams[streamID] = st
	}
	return nil
}
