// Package trips models provider trip records on their way into the
// warehouse.
//
// A trip arrives as a loosely typed JSON object. The package validates
// it against a declarative schema, extracts its route endpoints,
// enriches it with polygon identifiers, normalizes its epoch
// timestamps to civil time, and renders the upsert mutation keyed on
// trip_id. Providers that ship integer identifiers get deterministic
// synthetic UUIDs so reruns land on the same rows.
package trips
