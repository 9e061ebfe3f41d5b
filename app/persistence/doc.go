// Package persistence translates job application records to and from the
// local SQLite store. Loading is tolerant by contract: malformed or missing
// fields degrade to defaults instead of failing, so the caller can always
// render something. Saving surfaces errors, the in-memory collection stays
// the source of truth for the session regardless.
package persistence
