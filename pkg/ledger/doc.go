// Package ledger keeps the append-only earnings history per creator.
// Entries are never updated or deleted; corrections are compensating
// entries. The unique external reference per entry makes appends idempotent
// under webhook redelivery.
package ledger
