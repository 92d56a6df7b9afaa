// Copyright 2025 Certen Protocol

package config

import (
	"fmt"
	"strings"
)

// Validate checks a Config for the combinations that would otherwise fail
// much later, at component construction or first use: a backend selected
// without its required settings, or a governance quorum that cannot be
// reached by the declared signer set.
func (c *Config) Validate() error {
	var errs []string

	switch c.EventStore.Backend {
	case "memory", "kv":
	case "file":
		if c.EventStore.Path == "" {
			errs = append(errs, "eventStore.path is required when eventStore.backend is \"file\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("eventStore.backend %q is not one of memory, file, kv", c.EventStore.Backend))
	}

	switch c.Snapshot.Backend {
	case "memory", "kv":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required when snapshot.backend is \"postgres\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("snapshot.backend %q is not one of memory, kv, postgres", c.Snapshot.Backend))
	}

	if c.Governance.Quorum > len(c.Governance.Signers) {
		errs = append(errs, "governance.quorum cannot exceed the number of governance.signers")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
