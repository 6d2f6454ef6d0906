// Package types defines the domain model shared across the Stackdock engine:
// project and service snapshots, the closed state enum, operation records,
// and the error taxonomy.
//
// Snapshots are immutable by convention. Discovery builds a fresh []*Project
// on every refresh and readers share it without locking; nothing in the
// engine mutates a snapshot after assembly.
package types
