// Package cipher implements the closed set of symmetric ciphers the
// encryption layer can select by name. The algorithm name is the
// serialization contract persisted in the caller's configuration, not
// the Go type: callers construct an [Algorithm] by name via [Lookup]
// and the returned value dispatches encrypt/decrypt internally.
package cipher
