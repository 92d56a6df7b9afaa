// Copyright 2025 Certen Protocol

// Package projector closes the loop spec.md's data flow describes between
// the event store and the read-side subsystems: a domain command appends
// one event to the event store (pkg/eventstore), never writes to the
// ledger (pkg/ledger) or registrar (pkg/registrar) directly, and a
// Projector is what turns that appended event into the corresponding
// ledger post or registrar entry. Rebuilding a ledger/registrar from
// scratch is the same operation as catching up from position zero: both
// are just ReadAll followed by Apply, grounded on
// pkg/eventstore/filestore.go's replayInto, generalized from "replay into
// this store's own stream index" to "replay into the derived ledger and
// registrar projections".
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/certen/attestia/pkg/eventstore"
	"github.com/certen/attestia/pkg/ledger"
	"github.com/certen/attestia/pkg/registrar"
)

// Event types this Projector knows how to apply. A command handler
// appends an event of one of these types; any other type is left alone,
// since a Projector only ever reads the stream, never defines what is
// valid to put into it.
const (
	EventLedgerEntriesPosted = "LedgerEntriesPosted"
	EventStateRegistered     = "StateRegistered"
)

// LedgerEntriesPosted is the payload of an EventLedgerEntriesPosted
// event: exactly what ledger.Ledger.Append takes.
type LedgerEntriesPosted struct {
	Entries     []ledger.Entry `json:"entries"`
	Description string         `json:"description,omitempty"`
}

// StateRegistered is the payload of an EventStateRegistered event:
// exactly what registrar.Registrar.Register takes.
type StateRegistered struct {
	Structure string                 `json:"structure"`
	Data      map[string]interface{} `json:"data"`
	ParentID  string                 `json:"parentId,omitempty"`
}

// Projector applies known event types to a ledger and a registrar.
// Apply adds no duplicate detection of its own. Replaying the same
// LedgerEntriesPosted event fails the second time with the ledger's
// duplicate-entry-id conflict rather than double-posting; replaying the
// same StateRegistered event registers a second state under a new id,
// unless a registrar invariant rejects it.
type Projector struct {
	ledger    *ledger.Ledger
	registrar *registrar.Registrar
	logger    *log.Logger
}

// New constructs a Projector over led and reg. logger defaults to
// log.Default() if nil.
func New(led *ledger.Ledger, reg *registrar.Registrar, logger *log.Logger) *Projector {
	if logger == nil {
		logger = log.Default()
	}
	return &Projector{ledger: led, registrar: reg, logger: logger}
}

// Apply projects one StoredEvent. Unknown event types are a no-op, not an
// error: a Projector only handles the subset of the stream it knows
// about, the same way a schema catalog tolerates an unknown payload shape
// rather than rejecting it.
func (p *Projector) Apply(e eventstore.StoredEvent) error {
	switch e.Type {
	case EventLedgerEntriesPosted:
		var payload LedgerEntriesPosted
		if err := decode(e.Data, &payload); err != nil {
			return fmt.Errorf("projector: decode %s: %w", e.Type, err)
		}
		if _, err := p.ledger.Append(payload.Entries, ledger.AppendOptions{Description: payload.Description}); err != nil {
			return fmt.Errorf("projector: apply %s to ledger: %w", e.Type, err)
		}
		return nil

	case EventStateRegistered:
		var payload StateRegistered
		if err := decode(e.Data, &payload); err != nil {
			return fmt.Errorf("projector: decode %s: %w", e.Type, err)
		}
		if _, err := p.registrar.Register(payload.Structure, payload.Data, payload.ParentID); err != nil {
			return fmt.Errorf("projector: apply %s to registrar: %w", e.Type, err)
		}
		return nil

	default:
		return nil
	}
}

// CatchUp reads every event in store's global stream from the beginning
// and applies each one in order. Used at startup to rebuild the ledger
// and registrar from a durable event store rather than from a snapshot.
func (p *Projector) CatchUp(ctx context.Context, store *eventstore.Store) error {
	events, err := store.ReadAll(ctx, 0)
	if err != nil {
		return fmt.Errorf("projector: read event stream: %w", err)
	}
	for _, e := range events {
		if err := p.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

// Run calls CatchUp once, then applies every subsequent event the store
// delivers over SubscribeAll until ctx is cancelled or the subscription
// closes. Apply errors are logged, not fatal: one bad event should not
// stop the projector from keeping up with the rest of the stream.
func (p *Projector) Run(ctx context.Context, store *eventstore.Store) error {
	if err := p.CatchUp(ctx, store); err != nil {
		return err
	}

	sub := store.SubscribeAll()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := p.Apply(e); err != nil {
				p.logger.Printf("projector: %v", err)
			}
		}
	}
}

func decode(data interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
