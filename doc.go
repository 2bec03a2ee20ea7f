// Package gimbal provides optimistic settings synchronization primitives
// for client applications backed by a remote configuration store.
//
// The core type is Store, which owns a local snapshot of a flat settings
// document and reconciles every edit against the authoritative remote
// store:
//
//	Update → optimistic merge → notify observers → remote write → refresh
//
// Any failure, transport error or business rejection, discards the
// optimistic overlay by re-fetching authoritative state (rollback via
// refresh), never by computing an inverse patch. A successful write also
// re-fetches, because a single field update can have server-side side
// effects on other fields. The store survives every failure and always
// settles on a consistent snapshot.
//
// # State Machine
//
// Store maintains one of four states:
//
//   - Loading: no refresh has completed yet
//   - Healthy: snapshot matches the last authoritative fetch
//   - Degraded: the last change failed and was rolled back
//   - Empty: the initial refresh failed; defaults are served
//
// # Continuous Controls
//
// Binding decouples sliders and free-text inputs from the update cycle: a
// drag or keystroke burst accumulates locally and commits once on the
// trailing edge. While an edit is in progress the user's value beats any
// concurrent external refresh.
//
//	split := gimbal.NewBinding(store, "aria2_split", func(d gimbal.Document) int {
//	    return d.Aria2Split
//	})
//	split.OnChange(30)          // during drag: store untouched
//	split.Commit(ctx)           // on release: one update
//
// # Destructive Operations
//
// Gate arms an action behind an explicit confirmation; the action runs if
// and only if the user confirms, exactly once. Coordinator runs
// identity-changing operations (switch, delete, login) and invalidates
// dependent caches before any read or refresh could observe stale data
// under the new identity.
//
// # Backends
//
// The Client interface abstracts the remote store. Backends live in pkg/:
//
//   - pkg/httpclient: REST settings service
//   - pkg/fileclient: local file-backed store with fsnotify change feed
//
// The testing package provides a StubClient for deterministic tests.
package gimbal
