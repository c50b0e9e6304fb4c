// Package services defines shared utilities consumed by the engine wrappers,
// the coordinator, and the HTTP surface.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, engine kinds, and correlation
//     identifiers for logging and tracing.
//   - Structured failure markers plus the Wrap helper so every error leaving
//     an engine carries its cause (input too large, decode failed, ...).
//
// Use these helpers when wiring new engine logic so failures stay
// classifiable all the way to the user-facing message.
package services
