// Package session owns the lifecycle of a participant's testing session:
// starting one, detecting an interrupted one at the next launch, resuming
// or discarding it, and completing it cleanly.
//
// A session moves through NoSession, Active, and Completed. "Crashed" is
// never written anywhere: it is inferred at startup from a recovery
// snapshot whose completion marker is absent.
package session
