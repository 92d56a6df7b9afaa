// Copyright 2025 Certen Protocol

package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// KV is the minimal durable backend a snapshot store can be layered over,
// matching the adapter in pkg/kvdb. Delete is required here (unlike
// eventstore.KV) because deleteAll must actually remove the stream's
// versions rather than merely stop referencing them.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

// KVStore is a Store backed by a KV. Every version is kept under its own
// key so LoadAtVersion never depends on HasSnapshot; a separate index key
// tracks which versions exist per stream so DeleteAll can find them all
// without a range scan the KV interface does not support.
type KVStore struct {
	kv KV
}

// NewKVStore constructs a snapshot store over kv.
func NewKVStore(kv KV) *KVStore {
	return &KVStore{kv: kv}
}

func recordKey(streamID string, version int64) []byte {
	return []byte(fmt.Sprintf("snap/rec/%s/%020d", streamID, version))
}

func indexKey(streamID string) []byte {
	return []byte(fmt.Sprintf("snap/idx/%s", streamID))
}

func topKey(streamID string) []byte {
	return []byte(fmt.Sprintf("snap/top/%s", streamID))
}

type versionIndex struct {
	Versions []int64 `json:"versions"`
}

func (s *KVStore) loadIndex(streamID string) (versionIndex, error) {
	raw, err := s.kv.Get(indexKey(streamID))
	if err != nil {
		return versionIndex{}, err
	}
	if raw == nil {
		return versionIndex{}, nil
	}
	var idx versionIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return versionIndex{}, fmt.Errorf("snapshot: decode index for %q: %w", streamID, err)
	}
	return idx, nil
}

func (s *KVStore) saveIndex(streamID string, idx versionIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return s.kv.Set(indexKey(streamID), raw)
}

func (s *KVStore) Save(rec Record) error {
	if rec.StreamID == "" {
		return newErr(ErrInvalidInput, "streamId is required")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := s.kv.Set(recordKey(rec.StreamID, rec.Version), raw); err != nil {
		return fmt.Errorf("snapshot: save: %w", err)
	}

	idx, err := s.loadIndex(rec.StreamID)
	if err != nil {
		return err
	}
	found := false
	for _, v := range idx.Versions {
		if v == rec.Version {
			found = true
			break
		}
	}
	if !found {
		idx.Versions = append(idx.Versions, rec.Version)
		if err := s.saveIndex(rec.StreamID, idx); err != nil {
			return err
		}
	}

	topRaw, err := s.kv.Get(topKey(rec.StreamID))
	if err != nil {
		return err
	}
	if topRaw == nil || rec.Version >= decodeVersion(topRaw) {
		if err := s.kv.Set(topKey(rec.StreamID), encodeVersion(rec.Version)); err != nil {
			return fmt.Errorf("snapshot: save top pointer: %w", err)
		}
	}
	return nil
}

func encodeVersion(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeVersion(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func (s *KVStore) Load(streamID string) (Record, bool, error) {
	topRaw, err := s.kv.Get(topKey(streamID))
	if err != nil {
		return Record{}, false, err
	}
	if topRaw == nil {
		return Record{}, false, nil
	}
	return s.LoadAtVersion(streamID, decodeVersion(topRaw))
}

func (s *KVStore) LoadAtVersion(streamID string, version int64) (Record, bool, error) {
	raw, err := s.kv.Get(recordKey(streamID, version))
	if err != nil {
		return Record{}, false, err
	}
	if raw == nil {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("snapshot: decode %q@%d: %w", streamID, version, err)
	}
	return rec, true, nil
}

func (s *KVStore) DeleteAll(streamID string) error {
	idx, err := s.loadIndex(streamID)
	if err != nil {
		return err
	}
	for _, v := range idx.Versions {
		if err := s.kv.Delete(recordKey(streamID, v)); err != nil {
			return fmt.Errorf("snapshot: delete %q@%d: %w", streamID, v, err)
		}
	}
	if err := s.kv.Delete(indexKey(streamID)); err != nil {
		return fmt.Errorf("snapshot: delete index for %q: %w", streamID, err)
	}
	if err := s.kv.Delete(topKey(streamID)); err != nil {
		return fmt.Errorf("snapshot: delete top pointer for %q: %w", streamID, err)
	}
	return nil
}

func (s *KVStore) HasSnapshot(streamID string) (bool, error) {
	topRaw, err := s.kv.Get(topKey(streamID))
	if err != nil {
		return false, err
	}
	return topRaw != nil, nil
}
