// Package protocol defines the typed messages exchanged between the
// coordinator and the engine contexts.
//
// Requests form a closed set (Convert, ExtractAudio, Transcribe) sealed by an
// unexported marker method, so engines dispatch with an exhaustive type
// switch. Responses are a status-tagged stream: zero or more loading events
// followed by exactly one success or error. JSON tags on both sides double as
// the wire schema the HTTP API publishes.
package protocol
