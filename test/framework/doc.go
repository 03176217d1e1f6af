// Package framework stands up a complete fake backend set for black box
// pipeline tests: a provider feed, a warehouse, an object store and an
// open data portal, wired into a ready App. Each fake answers the wire
// protocol its real counterpart speaks and records enough traffic for
// assertions.
package framework
