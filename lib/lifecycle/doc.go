// Package lifecycle models the create/active/inactive/destroy lifecycle of a
// host object as an explicit state machine. Observers register on a Source,
// the owner drives a Registry through its transitions.
package lifecycle
