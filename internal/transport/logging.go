// SPDX-License-Identifier: MIT
package transport

import applog "enhancer/internal/log"

// LoggingTransport is a Transport that discards payloads. It stands in
// when no observer endpoint is configured.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: using LoggingTransport")
	return &LoggingTransport{}
}

// Send drops the payload. Logging every snapshot would flood the log at
// the analysis cadence.
func (lt *LoggingTransport) Send(data any) error {
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
