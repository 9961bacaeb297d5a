// Package provider defines the protocol-agnostic interface for model
// inference backends. Each adapter implementation (e.g., lls) handles its
// own backend protocol internally. The interface operates on turnstile's
// own types (Request, Event, api.Response), keeping backend protocol
// details invisible to the engine.
package provider
