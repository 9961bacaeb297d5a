// Package engine orchestrates a single chat turn: policy admission (quota
// and safety shields), exactly one backend dispatch, transcoding of the
// backend stream into the outward wire protocol, result extraction, quota
// accounting, and best-effort turn persistence.
//
// The engine implements transport.TurnCreator. One goroutine drives each
// turn; the only state shared across turns is the quota ledger and the
// TTL-cached shield and model catalogs.
package engine
