// Copyright 2025 Certen Protocol

package verifier

import (
	"testing"

	"github.com/certen/attestia/pkg/gsh"
	"github.com/certen/attestia/pkg/ledger"
	"github.com/certen/attestia/pkg/registrar"
)

func sampleBundle(t *testing.T) gsh.ExportableStateBundle {
	t.Helper()
	l := ledger.New()
	r := registrar.New("strict")
	b, err := gsh.CreateStateBundle(l.Snapshot(), r.Snapshot(), []string{"h1"}, map[string]string{"eip155:1": "deadbeef"})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRunVerificationPassesOnUntamperedBundle(t *testing.T) {
	b := sampleBundle(t)
	report, err := RunVerification(b, Options{VerifierID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != Pass {
		t.Fatalf("expected PASS, got %s with discrepancies %v", report.Verdict, report.Discrepancies)
	}
	if len(report.Discrepancies) != 0 {
		t.Fatalf("expected no discrepancies, got %v", report.Discrepancies)
	}
}

func TestRunVerificationCatchesTamperedBundleHash(t *testing.T) {
	b := sampleBundle(t)
	b.BundleHash = "tampered"
	report, err := RunVerification(b, Options{VerifierID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != Fail {
		t.Fatal("expected FAIL for a tampered bundle hash")
	}
	found := false
	for _, d := range report.Discrepancies {
		if d == "Bundle hash mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'Bundle hash mismatch' discrepancy, got %v", report.Discrepancies)
	}
}

func TestRunVerificationAccumulatesMultipleMismatchesWithoutShortCircuit(t *testing.T) {
	b := sampleBundle(t)
	b.BundleHash = "tampered"
	b.GlobalStateHash.Subsystems.Ledger = "tampered-ledger-hash"
	report, err := RunVerification(b, Options{VerifierID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Discrepancies) < 2 {
		t.Fatalf("expected at least 2 independent discrepancies to accumulate, got %v", report.Discrepancies)
	}
}

func TestStrictModeRequiresChainHashes(t *testing.T) {
	l := ledger.New()
	r := registrar.New("strict")
	b, err := gsh.CreateStateBundle(l.Snapshot(), r.Snapshot(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	report, err := RunVerification(b, Options{VerifierID: "v1", StrictMode: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Verdict != Fail {
		t.Fatal("expected strict mode to fail a bundle without chain hashes")
	}
}

func TestReportIDsAreUniquePerRun(t *testing.T) {
	b := sampleBundle(t)
	r1, err := RunVerification(b, Options{VerifierID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := RunVerification(b, Options{VerifierID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if r1.ReportID == r2.ReportID {
		t.Fatal("expected distinct reportIds across independent runs over identical input")
	}
}

func TestBuildConsensusUnanimousPass(t *testing.T) {
	b := sampleBundle(t)
	n1 := NewVerifierNode("v1")
	n2 := NewVerifierNode("v2")
	n3 := NewVerifierNode("v3")
	r1, _ := n1.Verify(b, Options{})
	r2, _ := n2.Verify(b, Options{})
	r3, _ := n3.Verify(b, Options{})

	c, err := BuildConsensus([]VerifierReport{r1, r2, r3}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if c.Verdict != Pass || !c.QuorumReached || len(c.Dissenters) != 0 || c.AgreementRatio != 1.0 {
		t.Fatalf("unexpected consensus: %+v", c)
	}
}

func TestBuildConsensusWithDissenter(t *testing.T) {
	b := sampleBundle(t)
	n1 := NewVerifierNode("v1")
	n2 := NewVerifierNode("v2")
	r1, _ := n1.Verify(b, Options{})

	tampered := b
	tampered.BundleHash = "tampered"
	r2, _ := n2.Verify(tampered, Options{})
	// BuildConsensus requires identical bundleHash across reports; force
	// the dissenting report's bundleHash to match for this scenario since
	// consensus is computed over reports about the same declared bundle.
	r2.BundleHash = r1.BundleHash

	c, err := BuildConsensus([]VerifierReport{r1, r2}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if c.Verdict != Fail {
		t.Fatal("expected overall FAIL when not every report is PASS")
	}
	if len(c.Dissenters) != 1 || c.Dissenters[0] != "v2" {
		t.Fatalf("expected v2 to be the lone dissenter, got %v", c.Dissenters)
	}
}
