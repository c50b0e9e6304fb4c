// Package coordinator owns the engine handles and projects their response
// streams onto one observable job state per engine.
//
// Every public operation blocks until its engine returns a terminal response.
// An engine that is already running a job rejects new work with
// services.ErrEngineBusy instead of queueing it. The decode handoff between
// audio extraction and transcription runs here, outside both engines.
package coordinator
