// Package metricskey describes the metrics this module emits, in the same
// shape as the teacher's metricskey/describe.go.
package metricskey

import "github.com/effective-security/metrics"

// Descriptions of emitted metrics keys.
var (
	// HandshakeFailed counts TLS handshake failures by role (client|server).
	HandshakeFailed = metrics.Describe{
		Name:         "ofssl_handshake_failed",
		Type:         "counter",
		RequiredTags: []string{"role"},
		Help:         "ofssl_handshake_failed counts failed TLS handshakes by role.",
	}

	// BootstrapWon counts bootstrap CA races this process won.
	BootstrapWon = metrics.Describe{
		Name: "ofssl_bootstrap_won",
		Type: "counter",
		Help: "ofssl_bootstrap_won counts bootstrap CA races this process won.",
	}

	// BootstrapLost counts bootstrap CA races this process lost to a
	// concurrent connection.
	BootstrapLost = metrics.Describe{
		Name: "ofssl_bootstrap_lost",
		Type: "counter",
		Help: "ofssl_bootstrap_lost counts bootstrap CA races lost to a concurrent winner.",
	}

	// EagainRetries counts EAGAIN returns from the handshake, Recv and
	// Send, by direction.
	EagainRetries = metrics.Describe{
		Name:         "ofssl_eagain_total",
		Type:         "counter",
		RequiredTags: []string{"op", "direction"},
		Help:         "ofssl_eagain_total counts transient would-block returns from stream operations.",
	}
)
