// Package sampling undersamples the Stable class with a hash of the customer
// id, so the retained set depends only on (customer, seed, fraction).
package sampling

import (
	"encoding/binary"

	"github.com/dgryski/go-spooky"

	"github.com/YuminosukeSato/churnrank/core/frame"
)

// Resolution is the number of buckets the hash is reduced to.
const Resolution = 1_000_000

// PipelineSeed is the sampling seed used by every model group. Seed-ensemble
// members of one model therefore share a subsample and differ only in the
// trainer's own seeds.
const PipelineSeed = 0

// Hash is a stable 64-bit hash of (customerID, seed): the little-endian
// customer id is hashed, the seed added, and the sum hashed again.
func Hash(customerID int64, seed int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(customerID))
	h := spooky.Hash64(buf[:])
	binary.LittleEndian.PutUint64(buf[:], h+uint64(seed))
	return spooky.Hash64(buf[:])
}

// Bucket maps the hash to [0, 1) in steps of 1/Resolution.
func Bucket(customerID int64, seed int64) float64 {
	return float64(Hash(customerID, seed)%Resolution) / Resolution
}

// Enabled reports whether fraction calls for undersampling. Zero, one and
// anything outside (0, 1) mean the full frame is used.
func Enabled(fraction float64) bool {
	return fraction > 0 && fraction < 1
}

// Keep reports whether a row survives undersampling. Non-Stable rows are
// always kept.
func Keep(customerID int64, outcome frame.Outcome, fraction float64, seed int64) bool {
	if outcome != frame.Stable || !Enabled(fraction) {
		return true
	}
	return Bucket(customerID, seed) <= fraction
}

// Filter returns a loader row filter applying Keep, or nil when sampling is
// disabled.
func Filter(fraction float64, seed int64) frame.RowFilter {
	if !Enabled(fraction) {
		return nil
	}
	return func(customerID int64, outcome frame.Outcome) bool {
		return Keep(customerID, outcome, fraction, seed)
	}
}

// Undersample returns the rows of f that survive Keep. When sampling is
// disabled f itself is returned.
func Undersample(f *frame.Frame, fraction float64, seed int64) *frame.Frame {
	if !Enabled(fraction) {
		return f
	}
	return f.Filter(func(i int) bool {
		return Keep(f.CustomerID(i), f.Outcome(i), fraction, seed)
	})
}
