// Package api defines the wire types of the turnstile protocol: turn
// requests, response snapshots, the output-item tagged union, streaming
// wire events, and the typed error taxonomy shared by all layers.
//
// The package has no dependencies on other turnstile packages so that
// provider adapters, storage backends, and the transport layer can all
// speak the same vocabulary.
package api
