// Copyright 2025 Certen Protocol

package eventstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// FileStore is an in-memory Store whose Append calls are additionally
// mirrored, one JSON object per line, to an append-only file. OpenFileStore
// replays that file back into memory at startup.
type FileStore struct {
	*Store
	f *os.File
}

// OpenFileStore opens (creating if necessary) path as the backing JSONL
// log and replays its contents into a fresh in-memory Store.
//
// If the file's last line is not valid JSON (a crash mid-write left a
// partial record), OpenFileStore truncates the file to the end of the last
// fully-parseable line rather than attempting to repair or skip the
// partial line; this is the stronger of the two handling strategies since
// it never reinterprets a partial write as a different, shorter event.
func OpenFileStore(path string) (*FileStore, error) {
	store := New()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open %s: %w", path, err)
	}

	validBytes := int64(0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			validBytes += int64(len(line)) + 1
			continue
		}
		var e StoredEvent
		if err := json.Unmarshal(line, &e); err != nil {
			store.logger.Printf("truncating %s at byte %d: partial record", path, validBytes)
			break
		}
		replayInto(store, e)
		validBytes += int64(len(line)) + 1
	}

	if err := f.Truncate(validBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("eventstore: truncate %s: %w", path, err)
	}
	if _, err := f.Seek(validBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("eventstore: seek %s: %w", path, err)
	}

	fs := &FileStore{Store: store, f: f}
	store.onAppend = fs.appendToFile
	store.logger = log.New(os.Stderr, "[EventStoreFile] ", log.LstdFlags)
	return fs, nil
}

func replayInto(s *Store, e StoredEvent) {
	st, ok := s.streams[e.StreamID]
	if !ok {
		st = &streamState{version: -1, lastHash: GenesisHash}
		s.streams[e.StreamID] = st
	}
	st.version = e.StreamVersion
	st.lastHash = e.Hash
	st.events = append(st.events, e)
	for int64(len(s.global)) <= e.GlobalPosition {
		s.global = append(s.global, StoredEvent{})
	}
	s.global[e.GlobalPosition] = e
}

func (fs *FileStore) appendToFile(e StoredEvent) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fs.f.Write(append(raw, '\n')); err != nil {
		return err
	}
	return fs.f.Sync()
}

// Close flushes and closes the backing file.
func (fs *FileStore) Close() error {
	return fs.f.Close()
}
