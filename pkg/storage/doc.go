/*
Package storage persists the operation audit log in an embedded BoltDB
database. One bucket, chronological keys, JSON values.

The Docker daemon owns all project state; nothing discovered is ever
written here. What survives a restart is the record of what the engine was
asked to do and how it went.
*/
package storage
