// Command battery is the operator CLI for the cognitive assessment
// battery: it runs sessions, resolves interrupted ones, re-exports
// result files, and manages participant biodata and configuration.
package main
