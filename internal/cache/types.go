// Package cache provides the local record cache for SpaceTraders game data.
//
// # Overview
//
// Every collection (systems, markets, contracts, ships, factions, agents,
// surveys) is a namespace of records keyed by their natural key. A collection
// is split into shards; each shard is one file under
// <cache root>/<collection>/<shard>.json holding a JSON object that maps
// natural key to record:
//
//	{
//	  "X1-AG66": {"symbol": "X1-AG66", "type": "RED_STAR", ...},
//	  "X1-AG67": {...}
//	}
//
// # Shard Routing
//
// A Router maps a natural key to a shard name. Routing is a pure function of
// the key so a key always lands in the same file across runs. Large
// collections use PrefixRouter (first 4 characters of the key); per-agent
// collections use FixedRouter.
//
// # Read-Modify-Write
//
// Shard files are rewritten whole. Writers go through Store, which holds a
// per-shard mutex around load+save, so two updates to different keys of the
// same shard never clobber each other.
//
// # Degraded Reads
//
// A shard that is missing, empty or undecodable reads as an empty map. A
// corrupt shard is logged and counted, never returned as an error: the next
// write replaces it.
package cache

import (
	"errors"
	"fmt"
)

// Record is one opaque domain entity (contract, ship, system, market...).
type Record = map[string]interface{}

// Shard maps natural keys to records. It is the unit of persistence.
type Shard map[string]Record

// ShardID identifies one shard file: the collection it belongs to and the
// name produced by the collection's router.
type ShardID struct {
	Collection string
	Name       string
}

func (id ShardID) String() string {
	return fmt.Sprintf("%s/%s", id.Collection, id.Name)
}

// ErrCorruptShard is wrapped by Backend.Load when a shard exists but cannot be decoded.
var ErrCorruptShard = errors.New("corrupt shard")

// ErrEmptyFetch is returned when a fetch function yields no record for the
// requested key. Nothing is written to the cache in that case.
var ErrEmptyFetch = errors.New("fetch returned no record")

// Backend is the interface for shard storage backends.
// The default implementation is FilesystemBackend which stores one file per shard.
type Backend interface {
	// Load returns the shard contents. A shard that does not exist (or is
	// empty) is returned as an empty, non-nil map with a nil error. A shard
	// that cannot be decoded returns an empty map and an error wrapping
	// ErrCorruptShard.
	Load(id ShardID) (Shard, error)

	// Save atomically replaces the whole shard.
	Save(id ShardID, shard Shard) error

	// Delete removes the shard. Deleting a missing shard is not an error.
	Delete(id ShardID) error

	// List returns the shards currently stored for a collection.
	List(collection string) ([]ShardID, error)

	// Path returns a human-readable location of the shard (for debugging).
	Path(id ShardID) string
}

// cloneShard copies the top-level map and each record map so callers can
// mutate what they get back without touching stored state.
func cloneShard(s Shard) Shard {
	out := make(Shard, len(s))
	for k, rec := range s {
		out[k] = cloneRecord(rec)
	}
	return out
}

func cloneRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
