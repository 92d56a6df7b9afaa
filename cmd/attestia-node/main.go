// Copyright 2025 Certen Protocol

// attestia-node is a minimal process that wires the event store, ledger,
// registrar, governance store, chain observers, reconciler, Global State
// Hash, Merkle tree, and replay verifier together end to end against one
// YAML configuration file. It has no HTTP surface: the flow it drives —
// append intents, reconcile, compute the state bundle, verify it
// independently, build and log the witness memo — is the thing an operator
// would otherwise trigger through an API, run here as a single pass so
// the wiring itself can be exercised and read top to bottom.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/attestia/pkg/canonicaljson"
	"github.com/certen/attestia/pkg/chain"
	"github.com/certen/attestia/pkg/chain/evm"
	"github.com/certen/attestia/pkg/chain/solana"
	"github.com/certen/attestia/pkg/chain/xrpl"
	"github.com/certen/attestia/pkg/config"
	"github.com/certen/attestia/pkg/eventstore"
	"github.com/certen/attestia/pkg/governance"
	"github.com/certen/attestia/pkg/gsh"
	"github.com/certen/attestia/pkg/kvdb"
	"github.com/certen/attestia/pkg/ledger"
	"github.com/certen/attestia/pkg/merkle"
	"github.com/certen/attestia/pkg/money"
	"github.com/certen/attestia/pkg/projector"
	"github.com/certen/attestia/pkg/reconciler"
	"github.com/certen/attestia/pkg/registrar"
	"github.com/certen/attestia/pkg/snapshot"
	"github.com/certen/attestia/pkg/verifier"
	"github.com/certen/attestia/pkg/witness"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "config.yaml", "path to the node's YAML configuration file")
	dataDir := flag.String("data-dir", "./data", "base directory for file/kv backend state")
	help := flag.Bool("help", false, "print usage and exit")
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[attestia-node] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[attestia-node] invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("[attestia-node] shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, *dataDir); err != nil {
		log.Fatalf("[attestia-node] %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, dataDir string) error {
	nodeLog := log.New(log.Writer(), "[attestia-node] ", log.LstdFlags|log.Lmicroseconds)

	store, closeStore, err := buildEventStore(cfg, dataDir)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer closeStore()

	snapStore, err := buildSnapshotStore(cfg, dataDir)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}

	led := ledger.New()
	reg := registrar.New("strict", registrar.InvariantUniqueStructurePerParent)
	gov := governance.NewGovernanceStore()

	// Account registration is chart-of-accounts setup, not an event-sourced
	// domain command: it happens once, outside the intent/projector flow
	// seedIntentEvents and the projector drive below.
	now := time.Now().UTC()
	if _, err := led.RegisterAccount("assets:custody", ledger.Asset, "Custody Assets", now); err != nil {
		return fmt.Errorf("register account: %w", err)
	}
	if _, err := led.RegisterAccount("equity:attestations", ledger.Equity, "Attested Equity", now); err != nil {
		return fmt.Errorf("register account: %w", err)
	}

	if err := seedGovernance(gov, cfg.Governance); err != nil {
		return fmt.Errorf("seed governance: %w", err)
	}
	policy, err := gov.GetCurrentPolicy()
	if err != nil {
		return fmt.Errorf("governance policy: %w", err)
	}
	nodeLog.Printf("governance policy v%d: %d signer(s), quorum %d", policy.Version, len(policy.Signers), policy.Quorum)

	intents, err := seedIntentEvents(store)
	if err != nil {
		return fmt.Errorf("seed events: %w", err)
	}

	proj := projector.New(led, reg, log.New(log.Writer(), "[projector] ", log.LstdFlags))
	if err := proj.CatchUp(ctx, store); err != nil {
		return fmt.Errorf("project events: %w", err)
	}
	entries := led.GetEntriesByCorrelation("corr-genesis-0001")

	observers := connectObservers(ctx, nodeLog, cfg.Chains)
	defer disconnectObservers(observers)

	report, err := reconciler.Reconcile(reconciler.Input{
		Intents:       intents,
		LedgerEntries: entries,
		ChainEvents:   nil, // no observer in this run is configured with a watch address to poll
	}, reconciler.Options{AttestedBy: "attestia-node"})
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	nodeLog.Printf("reconciliation: %d matched, %d mismatched, %d missing", report.MatchedCount, report.MismatchCount, report.MissingCount)

	eventHashes, err := hashAppendedEvents(store)
	if err != nil {
		return fmt.Errorf("hash event stream: %w", err)
	}

	chainHashes := map[string]string{}
	for chainID, status := range observerStatuses(observers) {
		h, err := canonicaljson.HashOf(status)
		if err != nil {
			return fmt.Errorf("hash chain status %s: %w", chainID, err)
		}
		chainHashes[chainID] = h
	}

	bundle, err := gsh.CreateStateBundle(led.Snapshot(), reg.Snapshot(), eventHashes, chainHashes)
	if err != nil {
		return fmt.Errorf("compute state bundle: %w", err)
	}
	nodeLog.Printf("global state hash: %s (bundle %s)", bundle.GlobalStateHash.Hash, bundle.BundleHash)

	if err := snapStore.Save(snapshot.Record{StreamID: "global-state", Version: int64(bundle.Version), State: bundle, SavedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("save state bundle snapshot: %w", err)
	}

	tree, err := buildMerkleTree(eventHashes)
	if err != nil {
		return fmt.Errorf("build merkle tree: %w", err)
	}
	if tree != nil {
		nodeLog.Printf("merkle root over %d event hash(es): %s", tree.LeafCount(), tree.RootHex())
	}

	verifierReport, err := verifier.RunVerification(bundle, verifier.Options{VerifierID: "attestia-node-self-check", Label: "startup self-check"})
	if err != nil {
		return fmt.Errorf("run verification: %w", err)
	}
	nodeLog.Printf("replay verification: %s (%d discrepancy(ies))", verifierReport.Verdict, len(verifierReport.Discrepancies))

	attemptWitnessSubmission(ctx, nodeLog, cfg.Witness, bundle)

	return nil
}

// buildEventStore constructs the event store for cfg.EventStore.Backend.
// "file" backs onto a JSONL file (pkg/eventstore.OpenFileStore); "kv"
// backs onto a GoLevelDB instance wrapped by pkg/kvdb, as the "kv"
// snapshot backend does.
func buildEventStore(cfg *config.Config, dataDir string) (*eventstore.Store, func(), error) {
	store := eventstore.New()
	noop := func() {}

	switch cfg.EventStore.Backend {
	case "memory":
		return store, noop, nil
	case "file":
		path := cfg.EventStore.Path
		if path == "" {
			path = filepath.Join(dataDir, "events.jsonl")
		}
		fs, err := eventstore.OpenFileStore(path)
		if err != nil {
			return nil, nil, err
		}
		return fs.Store, func() { fs.Close() }, nil
	case "kv":
		dir := filepath.Join(dataDir, "eventstore")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
		db, err := dbm.NewGoLevelDB("attestia-eventstore", dir)
		if err != nil {
			return nil, nil, err
		}
		store.WithKV(kvdb.NewKVAdapter(db))
		return store, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported eventStore.backend %q", cfg.EventStore.Backend)
	}
}

// buildSnapshotStore constructs the snapshot store for cfg.Snapshot.Backend.
// "memory" and "kv" are the two variants this entrypoint builds; a
// Postgres-backed snapshot.PGStore is available via pkg/snapshot/pgstore.go
// and pkg/database.Client for a deployment that wires its own pooled
// connection, but that wiring is left to the operator here.
func buildSnapshotStore(cfg *config.Config, dataDir string) (snapshot.Store, error) {
	switch cfg.Snapshot.Backend {
	case "memory":
		return snapshot.NewMemory(), nil
	case "kv":
		dir := cfg.Snapshot.Dir
		if dir == "" {
			dir = filepath.Join(dataDir, "snapshots")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		db, err := dbm.NewGoLevelDB("attestia-snapshots", dir)
		if err != nil {
			return nil, err
		}
		return snapshot.NewKVStore(kvdb.NewKVAdapter(db)), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot.backend %q for this entrypoint", cfg.Snapshot.Backend)
	}
}

// seedGovernance applies one SignerAdded event per configured signer,
// then a QuorumChanged event, in the version order GovernanceStore.Apply
// requires.
func seedGovernance(gov *governance.GovernanceStore, cfg config.GovernanceConfig) error {
	version := 1
	for _, addr := range cfg.Signers {
		if err := gov.Apply(governance.Event{
			Kind:      governance.SignerAdded,
			Version:   version,
			Timestamp: time.Now().UTC(),
			Actor:     "config",
			Address:   addr,
			Weight:    1,
		}); err != nil {
			return err
		}
		version++
	}
	if cfg.Quorum > 0 {
		if err := gov.Apply(governance.Event{
			Kind:      governance.QuorumChanged,
			Version:   version,
			Timestamp: time.Now().UTC(),
			Actor:     "config",
			NewQuorum: cfg.Quorum,
		}); err != nil {
			return err
		}
	}
	return nil
}

// seedIntentEvents appends the events one genesis custody deposit
// command would produce: a ledger posting, a registrar entry, and a
// record of the intent itself. It never touches the ledger or registrar
// directly — that is the projector's job (pkg/projector), run separately
// against the stream this function writes to.
func seedIntentEvents(store *eventstore.Store) ([]reconciler.Intent, error) {
	ctx := context.Background()
	correlationID := "corr-genesis-0001"

	amount, err := money.Parse("USD", 2, "100.00")
	if err != nil {
		return nil, err
	}

	if _, err := store.Append(ctx, eventstore.ExpectNoStream(), eventstore.DomainEvent{
		StreamID: "intent-0001",
		Type:     projector.EventLedgerEntriesPosted,
		Data: projector.LedgerEntriesPosted{
			Entries: []ledger.Entry{
				{ID: "entry-0001", AccountID: "assets:custody", Type: ledger.Debit, Money: amount, CorrelationID: correlationID, IntentID: "intent-0001"},
				{ID: "entry-0002", AccountID: "equity:attestations", Type: ledger.Credit, Money: amount, CorrelationID: correlationID, IntentID: "intent-0001"},
			},
			Description: "genesis custody deposit",
		},
		CorrelationID: correlationID,
	}); err != nil {
		return nil, err
	}

	if _, err := store.Append(ctx, eventstore.ExpectVersion(0), eventstore.DomainEvent{
		StreamID: "intent-0001",
		Type:     projector.EventStateRegistered,
		Data: projector.StateRegistered{
			Structure: "CustodyAccount",
			Data:      map[string]interface{}{"accountId": "assets:custody", "currency": "USD"},
		},
		CorrelationID: correlationID,
	}); err != nil {
		return nil, err
	}

	if _, err := store.Append(ctx, eventstore.ExpectVersion(1), eventstore.DomainEvent{
		StreamID:      "intent-0001",
		Type:          "IntentRecorded",
		Data:          map[string]interface{}{"intentId": "intent-0001", "correlationId": correlationID},
		CorrelationID: correlationID,
	}); err != nil {
		return nil, err
	}

	return []reconciler.Intent{
		{ID: "intent-0001", Status: reconciler.IntentExecuted, ChainID: "eip155:1", TxHash: "0xgenesis", CorrelationID: correlationID},
	}, nil
}

type observerHandle struct {
	chainID  string
	observer chain.Observer
}

// connectObservers builds one Observer per configured chain entry and
// attempts to Connect it. A connection failure is logged and that chain
// is simply omitted from the reconciliation/chain-hash inputs — chain
// reachability is an operational concern, not a reason to abort the
// whole run.
func connectObservers(ctx context.Context, nodeLog *log.Logger, cfg config.ChainsConfig) []observerHandle {
	var handles []observerHandle

	for _, c := range cfg.EVM {
		obs, err := evm.New(c.ToObserverConfig())
		if err != nil {
			nodeLog.Printf("evm observer %s: %v", c.ChainID, err)
			continue
		}
		handles = append(handles, observerHandle{chainID: c.ChainID, observer: obs})
	}
	for _, c := range cfg.Solana {
		obs, err := solana.New(c.ToObserverConfig())
		if err != nil {
			nodeLog.Printf("solana observer %s: %v", c.ChainID, err)
			continue
		}
		handles = append(handles, observerHandle{chainID: c.ChainID, observer: obs})
	}
	for _, c := range cfg.XRPL {
		obs, err := xrpl.New(c.ToObserverConfig())
		if err != nil {
			nodeLog.Printf("xrpl observer %s: %v", c.ChainID, err)
			continue
		}
		handles = append(handles, observerHandle{chainID: c.ChainID, observer: obs})
	}

	connected := handles[:0]
	for _, h := range handles {
		if err := h.observer.Connect(ctx); err != nil {
			nodeLog.Printf("connect %s: %v", h.chainID, err)
			continue
		}
		connected = append(connected, h)
	}
	return connected
}

func disconnectObservers(handles []observerHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, h := range handles {
		_ = h.observer.Disconnect(ctx)
	}
}

func observerStatuses(handles []observerHandle) map[string]chain.Status {
	out := make(map[string]chain.Status, len(handles))
	for _, h := range handles {
		out[h.chainID] = h.observer.GetStatus(context.Background())
	}
	return out
}

// hashAppendedEvents reads every event ever appended to the stream
// created during this run and returns its per-event canonical hash, the
// input BuildMerkleTree and the state bundle both want as leaves.
func hashAppendedEvents(store *eventstore.Store) ([]string, error) {
	all, err := store.ReadAll(context.Background(), 0)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(all))
	for _, e := range all {
		h, err := canonicaljson.HashOf(e)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

func buildMerkleTree(eventHashes []string) (*merkle.Tree, error) {
	if len(eventHashes) == 0 {
		return nil, nil
	}
	leaves := make([][]byte, len(eventHashes))
	for i, h := range eventHashes {
		leaves[i] = merkle.HashData([]byte(h))
	}
	return merkle.BuildTree(leaves)
}

// attemptWitnessSubmission builds the witness memo for the computed state
// bundle and logs it. A real submission additionally needs a chain-
// specific TxPreparer and a wallet Signer (pkg/chain/xrpl supplies the
// Submitter half via its RPC client); wiring a production signer is a key
// management concern this entrypoint deliberately leaves to the operator
// rather than fabricating one.
func attemptWitnessSubmission(_ context.Context, nodeLog *log.Logger, cfg config.WitnessConfig, bundle gsh.ExportableStateBundle) {
	if cfg.WitnessAccount == "" {
		nodeLog.Println("witness: no witnessAccount configured, skipping submission")
		return
	}
	memo, err := witness.BuildMemo(bundle)
	if err != nil {
		nodeLog.Printf("witness: build memo: %v", err)
		return
	}
	nodeLog.Printf("witness: memo ready for account %s on %s (%d bytes); submission requires a configured TxPreparer/Signer",
		cfg.WitnessAccount, cfg.ChainID, len(memo.MemoData)/2)
}
