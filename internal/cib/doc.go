// Package cib manages a working copy of a cluster configuration and
// commits it to the live coordinator.
//
// A Session owns one working copy (Store), the Baseline it was read from
// and the commit state machine:
//
//	sess := cib.NewSession(shadow, cib.WithPreferences(p), cib.WithLogger(logger))
//	if err := sess.Initialize(ctx); err != nil { ... }
//	if _, err := sess.Store().CreateObject("primitive", tokens); err != nil { ... }
//	if err := sess.Commit(ctx, false); err != nil { ... }
//
// Object sets (Build) select parts of the working copy for display,
// filtering, editing, import and export, verification, simulation and
// dependency graphs. Group membership is edited with GroupAdd and
// GroupRemove.
//
// Every mutation is all-or-nothing. Commits verify the changed objects,
// detect concurrent modification of the live configuration and only
// proceed over a problem when forced or confirmed.
package cib
