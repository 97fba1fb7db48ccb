// Package catalog persists the ensemble catalog in SQLite: ensembles and
// arrangements, the append-only version ledger with per-version audio slots,
// the part-identity registry with merge redirects and explicit ordering, and
// the revisioned part-book store with its one-open-batch guard.
package catalog
