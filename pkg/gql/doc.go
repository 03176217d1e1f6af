/*
Package gql is the HTTP client for the trip warehouse's GraphQL layer.

The client posts query documents as JSON with the Hasura admin secret
header and decodes the standard {data, errors} envelope. It carries no
retry logic of its own: transport retries belong to the provider client,
and block-level retries to the schedule's rerun flag.

The package also defines the value-quoting rules used by every query
builder in the pipeline: strings are double-quoted with backslash
escaping, booleans are lower-cased, numbers are emitted bare, and nil
renders as the null literal. Caller-supplied values must pass through
FormatValue rather than being interpolated directly.
*/
package gql
