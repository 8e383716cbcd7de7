package errors

import crdb "github.com/cockroachdb/errors"

// Domain markers for the five error kinds the sync-provider core produces.
// Provider code classifies an error by checking IsProtocol,
// IsRefreshRequired, etc., rather than matching on message text.
var (
	domainProtocol       = crdb.NewErrorDomain("syncprov.protocol")
	domainRefreshRequired = crdb.NewErrorDomain("syncprov.refresh_required")
	domainNoSuchObject   = crdb.NewErrorDomain("syncprov.no_such_object")
	domainInternal       = crdb.NewErrorDomain("syncprov.internal")
	domainCancelled      = crdb.NewErrorDomain("syncprov.cancelled")
)

// Protocol returns a new protocol-error with message msg: malformed sync control, mode out
// of range, duplicate sync control, or conflict with paged-results.
func Protocol(msg string) error {
	return WithDomain(New(msg), domainProtocol)
}

// Protocolf is Protocol with formatting.
func Protocolf(format string, args ...interface{}) error {
	return WithDomain(Newf(format, args...), domainProtocol)
}

// RefreshRequired returns a new refresh-required error with message msg: the consumer's
// cookie cannot be served (CSN older than session-log min and not found in
// the store, or the search base moved).
func RefreshRequired(msg string) error {
	return WithDomain(New(msg), domainRefreshRequired)
}

// NoSuchObject returns a new no-such-object error with message msg. The
// base tracker does not use this kind: it reports a missing or replaced
// search base as refresh-required.
func NoSuchObject(msg string) error {
	return WithDomain(New(msg), domainNoSuchObject)
}

// Internal wraps err as other-internal: BER encoding failure, store I/O
// failure, or anything else surfaced to the client as "internal error".
func Internal(err error, msg string) error {
	return WithDomain(Wrap(err, msg), domainInternal)
}

// Cancelled returns a new cancelled error with message msg: abandon/cancel acknowledged
// for a detached persistent search.
func Cancelled(msg string) error {
	return WithDomain(New(msg), domainCancelled)
}

// IsProtocol reports whether err (or a cause in its chain) is a protocol-error.
func IsProtocol(err error) bool { return GetDomain(err) == domainProtocol }

// IsRefreshRequired reports whether err is a refresh-required condition.
func IsRefreshRequired(err error) bool { return GetDomain(err) == domainRefreshRequired }

// IsNoSuchObject reports whether err is a no-such-object condition.
func IsNoSuchObject(err error) bool { return GetDomain(err) == domainNoSuchObject }

// IsInternal reports whether err is an other-internal condition.
func IsInternal(err error) bool { return GetDomain(err) == domainInternal }

// IsCancelled reports whether err is a cancelled condition.
func IsCancelled(err error) bool { return GetDomain(err) == domainCancelled }
