// SPDX-License-Identifier: MIT

// Package transport pushes enhancer status and analysis snapshots to
// observers. Implementations must be thread-safe; the analysis loop and
// the state machine both send from their own goroutines.
package transport

// Transport defines a generic interface for sending status or analysis
// data to observers.
type Transport interface {
	Send(data any) error
	Close() error
}
