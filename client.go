package gimbal

import "context"

// HistoryKind selects which path-history list a history operation targets.
type HistoryKind string

const (
	// HistoryCache is the hf_cache_history list.
	HistoryCache HistoryKind = "cache"
	// HistoryDownload is the download_dir_history list.
	HistoryDownload HistoryKind = "download"
)

// Client is the remote configuration store the Store reconciles against.
// It is consumed, not implemented, by this package; pkg/httpclient and
// pkg/fileclient provide backends, and the testing package provides a stub.
//
// Mutating calls return (Outcome, error) with a strict split: the error is
// transport-level only (unreachable, non-2xx, timeout), while business
// rejections arrive as Outcome{Success: false} with a message and a nil
// error. Both are rollback conditions for the Store; they differ only in
// the message surfaced to the user.
type Client interface {
	// FetchSettings returns the authoritative settings document.
	FetchSettings(ctx context.Context) (Document, error)

	// ApplySettings merges a partial document into the remote store.
	// Server-side side effects (path history appends, resolved-path
	// normalization) may change fields beyond those in the patch, which is
	// why the Store always re-fetches after success.
	ApplySettings(ctx context.Context, patch Patch) (Outcome, error)

	// FetchAccounts returns the saved account list.
	FetchAccounts(ctx context.Context) ([]Account, error)

	// SwitchAccount makes the named saved account active.
	SwitchAccount(ctx context.Context, username string) (Outcome, error)

	// DeleteAccount removes a saved account. Removing the active account
	// also clears the active identity.
	DeleteAccount(ctx context.Context, username string) (Outcome, error)

	// Login validates a token and adds (or updates) its account.
	Login(ctx context.Context, token string) (Outcome, error)

	// ValidateToken checks a token without logging in.
	ValidateToken(ctx context.Context, token string) (TokenInfo, error)

	// AddMirror registers a user-created mirror. The remote store assigns
	// the key, under CustomMirrorPrefix.
	AddMirror(ctx context.Context, req MirrorRequest) (Outcome, error)

	// RemoveMirror deletes a user-created mirror. Built-in mirrors are
	// rejected as a business outcome, not an error.
	RemoveMirror(ctx context.Context, key string) (Outcome, error)

	// DeleteHistory removes one path from a history list.
	DeleteHistory(ctx context.Context, kind HistoryKind, path string) (Outcome, error)
}
