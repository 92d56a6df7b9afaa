// Copyright 2025 Certen Protocol

package schema

import (
	"errors"
	"testing"
)

func TestMigrateAppliesChainedMigrations(t *testing.T) {
	c := New()
	c.Register("AccountOpened", 1)
	c.Register("AccountOpened", 3)
	c.RegisterMigration("AccountOpened", 1, func(d map[string]interface{}) (map[string]interface{}, error) {
		out := map[string]interface{}{}
		for k, v := range d {
			out[k] = v
		}
		out["currency"] = "USD"
		return out, nil
	})
	c.RegisterMigration("AccountOpened", 2, func(d map[string]interface{}) (map[string]interface{}, error) {
		out := map[string]interface{}{}
		for k, v := range d {
			out[k] = v
		}
		out["scale"] = 2
		return out, nil
	})

	data := map[string]interface{}{"accountId": "a1"}
	out, version, err := c.Migrate("AccountOpened", data, 1)
	if err != nil {
		t.Fatal(err)
	}
	if version != 3 {
		t.Fatalf("expected version 3, got %d", version)
	}
	if out["currency"] != "USD" || out["scale"] != 2 {
		t.Fatalf("migrations did not apply: %+v", out)
	}
	if _, hasCurrency := data["currency"]; hasCurrency {
		t.Fatalf("Migrate must not mutate its input")
	}
}

func TestMigrateUnknownTypePassesThrough(t *testing.T) {
	c := New()
	data := map[string]interface{}{"x": 1}
	out, version, err := c.Migrate("NeverRegistered", data, 5)
	if err != nil {
		t.Fatal(err)
	}
	if version != 5 {
		t.Fatalf("expected unchanged version for unknown type, got %d", version)
	}
	if out["x"] != 1 {
		t.Fatalf("expected unchanged payload")
	}
}

func TestMigrateFutureVersionPassesThrough(t *testing.T) {
	c := New()
	c.Register("Foo", 2)
	data := map[string]interface{}{"x": 1}
	out, version, err := c.Migrate("Foo", data, 5)
	if err != nil {
		t.Fatal(err)
	}
	if version != 5 || out["x"] != 1 {
		t.Fatalf("expected passthrough for a schema version newer than this catalog knows, got v%d %+v", version, out)
	}
}

func TestMigrateCurrentVersionPassesThrough(t *testing.T) {
	c := New()
	c.Register("Foo", 2)
	data := map[string]interface{}{"x": 1}
	out, version, err := c.Migrate("Foo", data, 2)
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 || out["x"] != 1 {
		t.Fatalf("expected passthrough at current version, got v%d %+v", version, out)
	}
}

func TestMigrateReportsMissingChainStep(t *testing.T) {
	c := New()
	c.Register("Foo", 1)
	c.Register("Foo", 3)
	// No migration registered from v1 or v2: the chain has a gap.
	_, _, err := c.Migrate("Foo", map[string]interface{}{}, 1)
	if !errors.Is(err, ErrMissingMigration) {
		t.Fatalf("expected ErrMissingMigration, got %v", err)
	}
}

func TestRegisterMigrationRequiresRegisteredType(t *testing.T) {
	c := New()
	err := c.RegisterMigration("Unregistered", 1, func(d map[string]interface{}) (map[string]interface{}, error) {
		return d, nil
	})
	if err == nil {
		t.Fatalf("expected error registering migration for unknown type")
	}
}

func TestRegisterSchemaIsIdempotentAtSameVersion(t *testing.T) {
	c := New()
	c.RegisterSchema(Schema{Type: "Foo", Version: 1, Description: "first"})
	c.RegisterSchema(Schema{Type: "Foo", Version: 1, Description: "replaced"})
	s, ok := c.GetSchema("Foo", 1)
	if !ok || s.Description != "replaced" {
		t.Fatalf("expected the later registration to replace the schema, got %+v", s)
	}
	if c.CurrentVersion("Foo") != 1 {
		t.Fatalf("expected current version to remain 1")
	}
}

func TestRegisterSchemaAtHigherVersionPreservesMigrations(t *testing.T) {
	c := New()
	c.Register("Foo", 1)
	c.RegisterMigration("Foo", 1, func(d map[string]interface{}) (map[string]interface{}, error) {
		d2 := map[string]interface{}{}
		for k, v := range d {
			d2[k] = v
		}
		d2["upgraded"] = true
		return d2, nil
	})
	c.Register("Foo", 2)

	out, version, err := c.Migrate("Foo", map[string]interface{}{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 || out["upgraded"] != true {
		t.Fatalf("expected migration registered before the version bump to still apply: v%d %+v", version, out)
	}
}

func TestValidatePayloadRunsAttachedValidator(t *testing.T) {
	c := New()
	c.RegisterSchema(Schema{
		Type:    "Foo",
		Version: 1,
		Validate: func(p map[string]interface{}) bool {
			_, ok := p["required"]
			return ok
		},
	})
	if err := c.ValidatePayload("Foo", 1, map[string]interface{}{}); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if err := c.ValidatePayload("Foo", 1, map[string]interface{}{"required": 1}); err != nil {
		t.Fatalf("expected valid payload to pass, got %v", err)
	}
}

func TestValidatePayloadPassesUnknownTypeOrVersion(t *testing.T) {
	c := New()
	if err := c.ValidatePayload("Unknown", 1, map[string]interface{}{}); err != nil {
		t.Fatalf("unknown type must pass validation, got %v", err)
	}
	c.Register("Foo", 1)
	if err := c.ValidatePayload("Foo", 9, map[string]interface{}{}); err != nil {
		t.Fatalf("unknown version must pass validation, got %v", err)
	}
}

func TestCreateVersionedEventAndGetSchemaVersionRoundTrip(t *testing.T) {
	payload := map[string]interface{}{"accountId": "a1"}
	meta := map[string]interface{}{"correlationId": "c1"}
	versioned := CreateVersionedEvent("AccountOpened", meta, payload, 3)
	if _, ok := payload["_schemaVersion"]; ok {
		t.Fatalf("CreateVersionedEvent must not mutate its input payload")
	}
	if versioned.Type != "AccountOpened" {
		t.Fatalf("expected type preserved, got %q", versioned.Type)
	}
	if versioned.Metadata["correlationId"] != "c1" {
		t.Fatalf("expected metadata carried through")
	}
	if GetSchemaVersion(versioned.Payload) != 3 {
		t.Fatalf("expected version 3, got %d", GetSchemaVersion(versioned.Payload))
	}
}

func TestGetSchemaVersionFallsBackToOneForLegacyPayloads(t *testing.T) {
	cases := []map[string]interface{}{
		{},
		{"_schemaVersion": "not-a-number"},
		{"_schemaVersion": 0},
		{"_schemaVersion": -1},
		{"_schemaVersion": 2.5},
	}
	for i, c := range cases {
		if v := GetSchemaVersion(c); v != 1 {
			t.Fatalf("case %d: expected fallback version 1, got %d for %+v", i, v, c)
		}
	}
}

func TestUpcastReturnsSameEventWhenNoMigrationNeeded(t *testing.T) {
	c := New()
	c.Register("Foo", 1)
	event := VersionedEvent{Type: "Foo", Payload: map[string]interface{}{"x": 1}}
	out, err := c.Upcast(event, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Payload) != len(event.Payload) || out.Payload["x"] != event.Payload["x"] {
		t.Fatalf("expected passthrough content, got %+v", out)
	}
}

func TestUpcastMigratesAndStampsNewVersion(t *testing.T) {
	c := New()
	c.Register("Foo", 1)
	c.RegisterMigration("Foo", 1, func(d map[string]interface{}) (map[string]interface{}, error) {
		d2 := map[string]interface{}{}
		for k, v := range d {
			d2[k] = v
		}
		d2["migrated"] = true
		return d2, nil
	})
	c.Register("Foo", 2)

	meta := map[string]interface{}{"correlationId": "c1"}
	event := VersionedEvent{Type: "Foo", Metadata: meta, Payload: map[string]interface{}{"x": 1}}
	out, err := c.Upcast(event, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Payload["migrated"] != true {
		t.Fatalf("expected migration applied, got %+v", out)
	}
	if GetSchemaVersion(out.Payload) != 2 {
		t.Fatalf("expected upcast event to carry the new version, got %d", GetSchemaVersion(out.Payload))
	}
	if out.Metadata["correlationId"] != "c1" {
		t.Fatalf("expected the same metadata to carry through the migration")
	}
}
