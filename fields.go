package gimbal

import "github.com/zoobzio/capitan"

// Field keys for store and coordinator events.
var (
	// KeyState is the current state of the Store.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyMessage is a business rejection message passed through verbatim.
	KeyMessage = capitan.NewStringKey("message")

	// KeyField is the document field a binding is bound to.
	KeyField = capitan.NewStringKey("field")

	// KeyFieldCount is the number of fields carried by a patch.
	KeyFieldCount = capitan.NewIntKey("field_count")

	// KeySequence is the refresh sequence number of a fetch.
	KeySequence = capitan.NewIntKey("sequence")

	// KeyUsername is the account a coordinator operation targets.
	KeyUsername = capitan.NewStringKey("username")

	// KeyCacheCount is the number of dependent caches invalidated.
	KeyCacheCount = capitan.NewIntKey("cache_count")

	// KeyTitle is the title of a confirmation prompt.
	KeyTitle = capitan.NewStringKey("title")
)
