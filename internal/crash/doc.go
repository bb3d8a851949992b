// Package crash provides the global safety net around a running battery:
// a panic guard that writes crash reports and triggers emergency saves, a
// heartbeat writer that lets a later launch tell a crash from a running
// instance, and a resource watcher that logs memory and CPU pressure
// before it becomes a crash.
package crash
