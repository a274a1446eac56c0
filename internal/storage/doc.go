// Package storage persists per-resource watch state between runs.
//
// Two namespaces are kept per resource key:
//   - digest: the hex digest of the last successful fetch, or "" after a
//     soft failure / first sighting
//   - content: the raw body of the last successful fetch
//
// A missing key is a normal "never observed" state. Drivers do no locking;
// runs are expected to be serialized by whatever schedules them.
package storage
