// Copyright 2025 Certen Protocol

// Package eventstore implements an append-only, hash-chained event log.
// Every stream is independently versioned; the store as a whole assigns
// each event a monotonic global position. Concurrency control is
// optimistic: callers declare the version they expect a stream to be at,
// and Append fails closed if reality has moved on.
package eventstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/certen/attestia/pkg/canonicaljson"
)

// GenesisHash seeds the hash chain for every stream's first event. It is
// the SHA-256 digest of the empty byte string, the natural "nothing came
// before this" anchor: any event store started from a fresh stream begins
// its chain from the same constant regardless of stream identity.
const GenesisHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// ExpectedVersion encodes the optimistic-concurrency precondition for an
// Append call.
type ExpectedVersion struct {
	// NoStream requires the stream not to exist yet.
	NoStream bool
	// Any disables the concurrency check entirely.
	Any bool
	// Version requires the stream's current version to equal exactly this
	// value. Only meaningful when NoStream and Any are both false.
	Version int64
}

// ExpectNoStream returns the "stream must not exist" precondition.
func ExpectNoStream() ExpectedVersion { return ExpectedVersion{NoStream: true} }

// ExpectAny disables the concurrency check.
func ExpectAny() ExpectedVersion { return ExpectedVersion{Any: true} }

// ExpectVersion requires the stream to currently be at exactly v.
func ExpectVersion(v int64) ExpectedVersion { return ExpectedVersion{Version: v} }

// DomainEvent is the event as supplied by a caller, before the store has
// assigned it a stream version, global position, or hash.
type DomainEvent struct {
	StreamID    string
	Type        string
	Version     int // schema version of Type, per pkg/schema
	Data        interface{}
	Metadata    map[string]interface{}
	CorrelationID string
	CausationID   string
}

// StoredEvent is a DomainEvent after it has been durably appended.
type StoredEvent struct {
	EventID        string                 `json:"eventId"`
	StreamID       string                 `json:"streamId"`
	StreamVersion  int64                  `json:"streamVersion"`
	GlobalPosition int64                  `json:"globalPosition"`
	Type           string                 `json:"type"`
	Version        int                    `json:"version"`
	Data           interface{}            `json:"data"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CorrelationID  string                 `json:"correlationId,omitempty"`
	CausationID    string                 `json:"causationId,omitempty"`
	RecordedAt     time.Time              `json:"recordedAt"`
	PrevHash       string                 `json:"prevHash"`
	Hash           string                 `json:"hash"`
}

// hashInput is the exact canonical payload hashed to produce StoredEvent.Hash.
type hashInput struct {
	PrevHash       string                 `json:"prevHash"`
	StreamID       string                 `json:"streamId"`
	StreamVersion  int64                  `json:"streamVersion"`
	GlobalPosition int64                  `json:"globalPosition"`
	Type           string                 `json:"type"`
	Version        int                    `json:"version"`
	Data           interface{}            `json:"data"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CorrelationID  string                 `json:"correlationId,omitempty"`
	CausationID    string                 `json:"causationId,omitempty"`
	RecordedAt     string                 `json:"recordedAt"`
}

func computeHash(e StoredEvent) (string, error) {
	in := hashInput{
		PrevHash:       e.PrevHash,
		StreamID:       e.StreamID,
		StreamVersion:  e.StreamVersion,
		GlobalPosition: e.GlobalPosition,
		Type:           e.Type,
		Version:        e.Version,
		Data:           e.Data,
		Metadata:       e.Metadata,
		CorrelationID:  e.CorrelationID,
		CausationID:    e.CausationID,
		RecordedAt:     e.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	return canonicaljson.HashOf(in)
}

type streamState struct {
	version  int64
	lastHash string
	events   []StoredEvent
}

// Subscription delivers newly appended events to a consumer. Close stops
// delivery; it is always safe to call more than once.
type Subscription struct {
	C      <-chan StoredEvent
	cancel func()
}

// Close unsubscribes. Events appended after Close returns are not sent on
// C; events already queued for the subscription may still be delivered
// before C is closed.
func (s *Subscription) Close() { s.cancel() }

// Store is an in-memory, hash-chained event store. A durable variant backs
// the same interface with a KV adapter (see WithKV) or a JSONL file (see
// OpenFileStore).
type Store struct {
	mu       sync.RWMutex
	streams  map[string]*streamState
	global   []StoredEvent
	subs     map[int]chan StoredEvent
	subSeq   int
	kv       KV
	logger   *log.Logger
	onAppend func(StoredEvent) error
}

// KV is the minimal durable backend an event store can be layered over,
// matching the adapter in pkg/kvdb.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// New constructs an in-memory event store.
func New() *Store {
	return &Store{
		streams: make(map[string]*streamState),
		subs:    make(map[int]chan StoredEvent),
		logger:  log.New(os.Stderr, "[EventStore] ", log.LstdFlags),
	}
}

// StreamExists reports whether streamID has ever had an event appended.
func (s *Store) StreamExists(streamID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[streamID]
	return ok
}

// StreamVersion returns the current version of streamID, or -1 if the
// stream does not exist.
func (s *Store) StreamVersion(streamID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[streamID]
	if !ok {
		return -1
	}
	return st.version
}

// GlobalPosition returns the position that would be assigned to the next
// appended event, across all streams.
func (s *Store) GlobalPosition() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.global))
}

// Append appends events atomically to a single stream, checking exp against
// the stream's current version. On success it returns the stored events in
// order. On failure no event is recorded.
func (s *Store) Append(ctx context.Context, exp ExpectedVersion, events ...DomainEvent) ([]StoredEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	streamID := events[0].StreamID
	for _, e := range events {
		if e.StreamID != streamID {
			return nil, fmt.Errorf("%w: Append requires all events to target one stream", ErrInvalidInput)
		}
		if e.Type == "" {
			return nil, fmt.Errorf("%w: event type is required", ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.streams[streamID]
	switch {
	case exp.Any:
		// no check
	case exp.NoStream:
		if exists {
			return nil, fmt.Errorf("%w: stream %q already exists", ErrConcurrencyConflict, streamID)
		}
	default:
		cur := int64(-1)
		if exists {
			cur = st.version
		}
		if cur != exp.Version {
			return nil, fmt.Errorf("%w: stream %q expected version %d, actual %d", ErrConcurrencyConflict, streamID, exp.Version, cur)
		}
	}

	if !exists {
		st = &streamState{version: -1, lastHash: GenesisHash}
		s.streams[streamID] = st
	}

	out := make([]StoredEvent, 0, len(events))
	now := time.Now().UTC()
	for _, e := range events {
		st.version++
		stored := StoredEvent{
			EventID:        uuid.NewString(),
			StreamID:       e.StreamID,
			StreamVersion:  st.version,
			GlobalPosition: int64(len(s.global)),
			Type:           e.Type,
			Version:        e.Version,
			Data:           e.Data,
			Metadata:       e.Metadata,
			CorrelationID:  e.CorrelationID,
			CausationID:    e.CausationID,
			RecordedAt:     now,
			PrevHash:       st.lastHash,
		}
		hash, err := computeHash(stored)
		if err != nil {
			return nil, fmt.Errorf("eventstore: hash event: %w", err)
		}
		stored.Hash = hash
		st.lastHash = hash
		st.events = append(st.events, stored)
		s.global = append(s.global, stored)
		out = append(out, stored)

		if s.kv != nil {
			if err := s.persist(stored); err != nil {
				s.logger.Printf("persist event %s failed: %v", stored.EventID, err)
				return nil, fmt.Errorf("eventstore: persist: %w", err)
			}
		}
		if s.onAppend != nil {
			if err := s.onAppend(stored); err != nil {
				s.logger.Printf("append hook failed for event %s: %v", stored.EventID, err)
				return nil, fmt.Errorf("eventstore: append hook: %w", err)
			}
		}
	}

	s.publish(out)
	return out, nil
}

// Read returns the events of streamID in version order, starting at
// fromVersion (inclusive). If streamID does not exist, Read returns
// ErrNotFound.
func (s *Store) Read(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: stream %q", ErrNotFound, streamID)
	}
	out := make([]StoredEvent, 0, len(st.events))
	for _, e := range st.events {
		if e.StreamVersion >= fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReadAll returns every event across every stream, ordered by global
// position, starting at fromPosition (inclusive).
func (s *Store) ReadAll(ctx context.Context, fromPosition int64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fromPosition < 0 {
		fromPosition = 0
	}
	if fromPosition >= int64(len(s.global)) {
		return nil, nil
	}
	out := make([]StoredEvent, len(s.global)-int(fromPosition))
	copy(out, s.global[fromPosition:])
	return out, nil
}

// Subscribe delivers future events on streamID only.
func (s *Store) Subscribe(streamID string) *Subscription {
	return s.subscribe(func(e StoredEvent) bool { return e.StreamID == streamID })
}

// SubscribeAll delivers every future event regardless of stream.
func (s *Store) SubscribeAll() *Subscription {
	return s.subscribe(func(e StoredEvent) bool { return true })
}

func (s *Store) subscribe(filter func(StoredEvent) bool) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subSeq++
	id := s.subSeq
	raw := make(chan StoredEvent, 256)
	filtered := make(chan StoredEvent, 256)
	s.subs[id] = raw

	go func() {
		for e := range raw {
			if filter(e) {
				select {
				case filtered <- e:
				default:
				}
			}
		}
		close(filtered)
	}()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			close(ch)
			delete(s.subs, id)
		}
	}
	return &Subscription{C: filtered, cancel: cancel}
}

func (s *Store) publish(events []StoredEvent) {
	for _, ch := range s.subs {
		for _, e := range events {
			select {
			case ch <- e:
			default:
				s.logger.Printf("subscriber channel full, dropping event %s", e.EventID)
			}
		}
	}
}

// HashChainError describes one position at which a hash-chain check
// failed.
type HashChainError struct {
	Position int64  `json:"position"`
	Reason   string `json:"reason"`
}

// HashChainReport is the result of VerifyHashChain: valid only if Errors
// is empty, in which case LastVerifiedPosition equals the number of
// events checked.
type HashChainReport struct {
	Valid                bool             `json:"valid"`
	LastVerifiedPosition int64            `json:"lastVerifiedPosition"`
	Errors               []HashChainError `json:"errors"`
}

// VerifyHashChain recomputes every event's hash in events, in the order
// given, and checks it against both the stored hash and the preceding
// event's hash. It takes a plain slice rather than a stream ID so any
// caller holding one stream's events in version order — a Read result, a
// replay verifier's input, a file exported and re-read elsewhere — can
// check it independently of this Store. The walk is one chain starting
// from GenesisHash; since every stream starts its own chain there, a
// ReadAll result spanning several streams does not verify. Mixed chains are tolerated: an event with
// no Hash (a legacy record written before hash-chaining existed) is
// skipped rather than flagged, and the chain resumes at the next hashed
// event without requiring its PrevHash to reference the skipped one. All
// failures accumulate; the walk never stops early.
func VerifyHashChain(events []StoredEvent) (HashChainReport, error) {
	report := HashChainReport{Valid: true}
	prev := GenesisHash
	haveAnchor := true
	var verified int64
	for _, e := range events {
		if e.Hash == "" {
			// Legacy event predating hash-chaining: skip, and don't
			// require the next hashed event to chain from it.
			haveAnchor = false
			continue
		}
		if haveAnchor && e.PrevHash != prev {
			report.Valid = false
			report.Errors = append(report.Errors, HashChainError{
				Position: e.StreamVersion,
				Reason:   fmt.Sprintf("prevHash %s does not match preceding hash %s", e.PrevHash, prev),
			})
		}
		want, err := computeHash(e)
		if err != nil {
			return HashChainReport{}, fmt.Errorf("eventstore: recompute hash: %w", err)
		}
		if want != e.Hash {
			report.Valid = false
			report.Errors = append(report.Errors, HashChainError{
				Position: e.StreamVersion,
				Reason:   fmt.Sprintf("recomputed hash %s does not match stored hash %s", want, e.Hash),
			})
		}
		prev = e.Hash
		haveAnchor = true
		verified++
	}
	report.LastVerifiedPosition = verified
	return report, nil
}

// VerifyHashChain recomputes the hash chain for one stream held by s. It
// reads the stream's events under lock and delegates to the package-level
// VerifyHashChain so both entry points share one verification path.
func (s *Store) VerifyHashChain(streamID string) (HashChainReport, error) {
	s.mu.RLock()
	st, ok := s.streams[streamID]
	if !ok {
		s.mu.RUnlock()
		return HashChainReport{}, fmt.Errorf("%w: stream %q", ErrNotFound, streamID)
	}
	events := make([]StoredEvent, len(st.events))
	copy(events, st.events)
	s.mu.RUnlock()

	return VerifyHashChain(events)
}
