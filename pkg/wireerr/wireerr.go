// Package wireerr contains the wire error taxonomy shared by the consensus
// layer, the VFS state machine and the LSP gateway. Each kind is a distinct
// Go type so callers can type-switch instead of matching on strings.
package wireerr

import "fmt"

// NotLeader is returned by a consensus group member that cannot accept
// proposals. Leader, if known, lets the caller retry directly against it.
type NotLeader struct {
	Leader *uint64
}

func (e *NotLeader) Error() string {
	if e.Leader == nil {
		return "error: not leader: no known leader"
	}
	return fmt.Sprintf("error: not leader: redirect to %d", *e.Leader)
}

// IsRetriable marks NotLeader as safe to retry (§7).
func (e *NotLeader) IsRetriable() {}

// GroupNotFound is returned when a request targets an unknown consensus group.
type GroupNotFound uint64

func (e GroupNotFound) Error() string { return fmt.Sprintf("error: group not found: %d", uint64(e)) }

// IsTerminal marks GroupNotFound as non-retriable against a different node (§7).
func (e GroupNotFound) IsTerminal() {}

// NodeUnreachable is returned when an RPC to a peer node failed at the transport level.
type NodeUnreachable uint64

func (e NodeUnreachable) Error() string {
	return fmt.Sprintf("error: node unreachable: %d", uint64(e))
}

// IsRetriable marks NodeUnreachable as safe to retry (§7).
func (e NodeUnreachable) IsRetriable() {}

// Timeout is returned when an RPC or an analyzer request exceeded its deadline.
type Timeout string

func (e Timeout) Error() string { return "error: timeout: " + string(e) }

// IsRetriable marks Timeout as safe to retry (§7).
func (e Timeout) IsRetriable() {}

// FileNotFound is returned when a command or query targets an unknown file id.
type FileNotFound uint64

func (e FileNotFound) Error() string { return fmt.Sprintf("error: file not found: %d", uint64(e)) }

// IsTerminal marks FileNotFound as deterministic and identical on every replica (§7).
func (e FileNotFound) IsTerminal() {}

// FileExists is returned by CreateFile/RenameFile when the destination path is already indexed.
type FileExists string

func (e FileExists) Error() string { return "error: file already exists: " + string(e) }

// IsTerminal marks FileExists as deterministic (§7).
func (e FileExists) IsTerminal() {}

// VersionMismatch is returned by a version-guarded UpdateFile when the caller's
// expected version does not match the file's current version.
type VersionMismatch struct {
	Expected uint64
	Actual   uint64
}

func (e *VersionMismatch) Error() string {
	return fmt.Sprintf("error: version mismatch: expected %d, actual %d", e.Expected, e.Actual)
}

// IsTerminal marks VersionMismatch as deterministic (§7).
func (e *VersionMismatch) IsTerminal() {}

// InvalidPath is returned when a path fails normalization.
type InvalidPath string

func (e InvalidPath) Error() string { return "error: invalid path: " + string(e) }

// IsTerminal marks InvalidPath as deterministic (§7).
func (e InvalidPath) IsTerminal() {}

// UnsupportedLanguage is returned by the analyzer pool for a language id with
// no entry in the spawn table.
type UnsupportedLanguage string

func (e UnsupportedLanguage) Error() string { return "error: unsupported language: " + string(e) }

// IsTerminal marks UnsupportedLanguage as deterministic (§7).
func (e UnsupportedLanguage) IsTerminal() {}

// LanguageServerNotRunning is returned when an analyzer proxy's reader task
// has exited (EOF or error) and all pending requests are being failed.
type LanguageServerNotRunning string

func (e LanguageServerNotRunning) Error() string {
	return "error: language server not running: " + string(e)
}

// IsTerminal marks LanguageServerNotRunning as deterministic (§7).
func (e LanguageServerNotRunning) IsTerminal() {}

// TransactionAborted is returned when a two-phase-commit transaction was
// aborted, either by a participant refusing prepare or by the coordinator.
type TransactionAborted string

func (e TransactionAborted) Error() string { return "error: transaction aborted: " + string(e) }

// IsTerminal marks TransactionAborted as deterministic (§7).
func (e TransactionAborted) IsTerminal() {}

// TransactionTimeout is returned when a two-phase-commit transaction did not
// reach a terminal state before its deadline.
type TransactionTimeout string

func (e TransactionTimeout) Error() string { return "error: transaction timeout: " + string(e) }

// IsRetriable marks TransactionTimeout as safe to retry (§7).
func (e TransactionTimeout) IsRetriable() {}

// Storage is a fatal error from the durable log store. Per §7 it is fatal to
// the consensus group: the node exits the group's role rather than continue
// with a partial log.
type Storage string

func (e Storage) Error() string { return "error: storage: " + string(e) }

// IsTerminal marks Storage as non-retriable against a different node (§7).
func (e Storage) IsTerminal() {}

// Serialization is returned when encoding or decoding a log entry or snapshot fails.
type Serialization string

func (e Serialization) Error() string { return "error: serialization: " + string(e) }

// IsTerminal marks Serialization as deterministic (§7).
func (e Serialization) IsTerminal() {}

// Internal wraps any error that doesn't fit a more specific kind.
type Internal string

func (e Internal) Error() string { return "error: internal: " + string(e) }

// IsTerminal marks Internal as non-retriable (§7).
func (e Internal) IsTerminal() {}

// IsRetriable is implemented by errors the gateway may retry, optionally
// against a different node, with jittered backoff (§7).
type IsRetriable interface {
	IsRetriable()
}

// IsTerminal is implemented by errors that are deterministic and must never
// trigger a retry against a different node (§7).
type IsTerminal interface {
	IsTerminal()
}

// Retriable reports whether err is safe to retry per the classification in §7.
func Retriable(err error) bool {
	_, ok := err.(IsRetriable)
	return ok
}
