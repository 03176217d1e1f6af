/*
Package config loads the pipeline's runtime configuration.

Configuration comes from two places: the process environment (credentials,
bucket, run mode, document keys, geography layer paths, worker count) and
a pair of JSON documents stored in the object store (provider profiles and
warehouse settings). The documents are usually encrypted at rest; the
object store strips the encryption layer transparently on read.

The environment snapshot is taken once with FromEnv. A Store is then
hydrated with Load and is immutable afterwards, so it can be shared freely
across pipeline workers. Provider profiles are validated on load; a
malformed profile fails the run before any block is touched.

Missing configuration is fatal: ErrConfigMissing is returned for unset
required values and unknown providers, and callers exit rather than guess.
*/
package config
