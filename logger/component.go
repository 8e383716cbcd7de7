package logger

// Component-tagged logging helpers. Each attaches a "component" field
// identifying which subsystem emitted the line, the way the teacher's
// symbol-tagged helpers (logger.PulseInfow, logger.DBInfow) tag log lines
// by subsystem glyph — generalized here to plain component names since
// this module has no glyph vocabulary.

const (
	componentCSN         = "csn"
	componentSessionLog  = "sessionlog"
	componentModSerial   = "modserial"
	componentBaseTracker = "basetracker"
	componentMatcher     = "matcher"
	componentSubscriber  = "subscriber"
	componentRefresh     = "refresh"
	componentCheckpoint  = "checkpoint"
	componentStore       = "entrystore"
	componentTransport   = "transport"
	componentProvider    = "provider"
)

func withComponent(component, msg string, keysAndValues []interface{}) (string, []interface{}) {
	return msg, append([]interface{}{"component", component}, keysAndValues...)
}

func CSNInfow(msg string, kv ...interface{}) {
	m, k := withComponent(componentCSN, msg, kv)
	Infow(m, k...)
}

func SessionLogInfow(msg string, kv ...interface{}) {
	m, k := withComponent(componentSessionLog, msg, kv)
	Infow(m, k...)
}

func SessionLogWarnw(msg string, kv ...interface{}) {
	m, k := withComponent(componentSessionLog, msg, kv)
	Warnw(m, k...)
}

func ModSerialWarnw(msg string, kv ...interface{}) {
	m, k := withComponent(componentModSerial, msg, kv)
	Warnw(m, k...)
}

func BaseTrackerInfow(msg string, kv ...interface{}) {
	m, k := withComponent(componentBaseTracker, msg, kv)
	Infow(m, k...)
}

func MatcherWarnw(msg string, kv ...interface{}) {
	m, k := withComponent(componentMatcher, msg, kv)
	Warnw(m, k...)
}

func SubscriberInfow(msg string, kv ...interface{}) {
	m, k := withComponent(componentSubscriber, msg, kv)
	Infow(m, k...)
}

func SubscriberWarnw(msg string, kv ...interface{}) {
	m, k := withComponent(componentSubscriber, msg, kv)
	Warnw(m, k...)
}

func RefreshInfow(msg string, kv ...interface{}) {
	m, k := withComponent(componentRefresh, msg, kv)
	Infow(m, k...)
}

func RefreshWarnw(msg string, kv ...interface{}) {
	m, k := withComponent(componentRefresh, msg, kv)
	Warnw(m, k...)
}

func CheckpointInfow(msg string, kv ...interface{}) {
	m, k := withComponent(componentCheckpoint, msg, kv)
	Infow(m, k...)
}

func CheckpointErrorw(msg string, kv ...interface{}) {
	m, k := withComponent(componentCheckpoint, msg, kv)
	Errorw(m, k...)
}

func StoreErrorw(msg string, kv ...interface{}) {
	m, k := withComponent(componentStore, msg, kv)
	Errorw(m, k...)
}

func TransportWarnw(msg string, kv ...interface{}) {
	m, k := withComponent(componentTransport, msg, kv)
	Warnw(m, k...)
}

func ProviderInfow(msg string, kv ...interface{}) {
	m, k := withComponent(componentProvider, msg, kv)
	Infow(m, k...)
}

func ProviderErrorw(msg string, kv ...interface{}) {
	m, k := withComponent(componentProvider, msg, kv)
	Errorw(m, k...)
}
