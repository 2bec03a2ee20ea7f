package gimbal

import "github.com/zoobzio/capitan"

// Store lifecycle signals.
var (
	// StoreRefreshed is emitted when an authoritative snapshot is adopted.
	StoreRefreshed = capitan.NewSignal(
		"gimbal.store.refreshed",
		"Authoritative snapshot adopted",
	)

	// StoreRefreshFailed is emitted when a fetch from the remote store fails.
	StoreRefreshFailed = capitan.NewSignal(
		"gimbal.store.refresh.failed",
		"Fetch from remote store failed",
	)

	// StoreRefreshDiscarded is emitted when a refresh response arrives after
	// a newer one has already been applied and is dropped.
	StoreRefreshDiscarded = capitan.NewSignal(
		"gimbal.store.refresh.discarded",
		"Stale refresh response discarded",
	)

	// StoreStateChanged is emitted when the store transitions between states.
	StoreStateChanged = capitan.NewSignal(
		"gimbal.store.state.changed",
		"Store state transition",
	)
)

// Update cycle signals.
var (
	// StoreUpdateApplied is emitted when an optimistic overlay is merged
	// into the snapshot, before any network round trip.
	StoreUpdateApplied = capitan.NewSignal(
		"gimbal.store.update.applied",
		"Optimistic overlay applied",
	)

	// StoreUpdateCommitted is emitted when an update's remote write and
	// trailing refresh both succeed.
	StoreUpdateCommitted = capitan.NewSignal(
		"gimbal.store.update.committed",
		"Update committed and snapshot re-derived",
	)

	// StoreUpdateRejected is emitted when the remote store reports a
	// business rejection for an update.
	StoreUpdateRejected = capitan.NewSignal(
		"gimbal.store.update.rejected",
		"Update rejected by remote store",
	)

	// StoreUpdateRolledBack is emitted when an optimistic overlay is
	// discarded by re-fetching authoritative state.
	StoreUpdateRolledBack = capitan.NewSignal(
		"gimbal.store.update.rolledback",
		"Optimistic overlay discarded via refresh",
	)

	// StoreSettled is emitted after a successful settled cycle, when the
	// OnSettled hook has been invoked.
	StoreSettled = capitan.NewSignal(
		"gimbal.store.settled",
		"Update cycle settled",
	)
)

// Binding signals.
var (
	// BindingCommitted is emitted when a field binding flushes its pending
	// edit into the store.
	BindingCommitted = capitan.NewSignal(
		"gimbal.binding.committed",
		"Pending edit committed",
	)

	// BindingAdopted is emitted when a binding adopts an externally
	// refreshed value while no edit is in progress.
	BindingAdopted = capitan.NewSignal(
		"gimbal.binding.adopted",
		"External value adopted by binding",
	)
)

// Gate signals.
var (
	// GateOpened is emitted when a confirmation prompt is shown.
	GateOpened = capitan.NewSignal(
		"gimbal.gate.opened",
		"Confirmation prompt opened",
	)

	// GateConfirmed is emitted when the user confirms and the wrapped
	// action is about to run.
	GateConfirmed = capitan.NewSignal(
		"gimbal.gate.confirmed",
		"Gated action confirmed",
	)

	// GateCancelled is emitted when a pending confirmation is dismissed
	// without running the action.
	GateCancelled = capitan.NewSignal(
		"gimbal.gate.cancelled",
		"Gated action cancelled",
	)
)

// Identity signals.
var (
	// IdentitySwitched is emitted when the active account changes.
	IdentitySwitched = capitan.NewSignal(
		"gimbal.identity.switched",
		"Active account switched",
	)

	// IdentityCachesInvalidated is emitted after every registered dependent
	// cache has been invalidated for an identity change.
	IdentityCachesInvalidated = capitan.NewSignal(
		"gimbal.identity.caches.invalidated",
		"Dependent caches invalidated",
	)

	// IdentityAccountsReloaded is emitted when the account list is re-read
	// from the remote store after an identity change.
	IdentityAccountsReloaded = capitan.NewSignal(
		"gimbal.identity.accounts.reloaded",
		"Account list reloaded",
	)
)
