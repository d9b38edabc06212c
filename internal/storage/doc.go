// Package storage persists send history: one row per dispatch attempt,
// with a file and a sqlite backend behind one Store interface.
package storage
