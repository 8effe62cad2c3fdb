// Package ir provides the wire-level record types shared by the synq engine,
// its transports and its storage snapshots.
//
// This package contains data types and their canonical encodings only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Operation records are immutable once created
//   - Record order inside a batch is significant and never rearranged here
//   - Canonical JSON (RFC 8785) is the only encoding used for digests
package ir
