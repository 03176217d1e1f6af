// Package provider implements the HTTP client for Mobility Data
// Specification (MDS) provider feeds.
//
// One Client serves one provider profile. Dialect differences between
// the supported MDS versions (0.2.0, 0.3.0, 0.4.0) are confined to the
// parameter tables in params.go; the envelope, paging and error
// handling are shared. Four authentication methods are built in: OAuth
// client-credentials, static bearer tokens, HTTP basic, and a custom
// hook for providers with bespoke schemes.
//
// Requests honor the profile's politeness delay, per-request timeout
// and attempt cap. Transient failures (timeouts, connection errors,
// 429, 5xx) are retried with exponential backoff; 401 and 403 surface
// as ErrAuthFailure without retry. Paged answers are followed through
// the next link up to a page budget and merged into a single result.
package provider
