package protocol

import (
	"encoding/asn1"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/errors"
)

// RequestMode is the sync control's requested mode (§6).
type RequestMode int

const (
	ModeRefreshOnly       RequestMode = 1
	ModeRefreshAndPersist RequestMode = 3
)

// SyncRequestControl is the control a consumer attaches to its search
// request.
//
//	syncRequestValue ::= SEQUENCE {
//	    mode        ENUMERATED,
//	    cookie      [0] IMPLICIT syncCookie OPTIONAL,
//	    reloadHint  BOOLEAN DEFAULT FALSE
//	}
type SyncRequestControl struct {
	Mode       RequestMode
	Cookie     []byte // nil if absent
	ReloadHint bool
}

type syncRequestWire struct {
	Mode       asn1.Enumerated
	Cookie     []byte `asn1:"optional,tag:0"`
	ReloadHint bool   `asn1:"optional,default:false"`
}

// DecodeSyncRequestControl parses the control value from a search
// request. An out-of-range mode or malformed value is a protocol error.
func DecodeSyncRequestControl(value []byte) (SyncRequestControl, error) {
	var w syncRequestWire
	rest, err := asn1.Unmarshal(value, &w)
	if err != nil {
		return SyncRequestControl{}, errors.Protocolf("malformed sync request control: %v", err)
	}
	if len(rest) != 0 {
		return SyncRequestControl{}, errors.Protocolf("malformed sync request control: trailing bytes")
	}
	mode := RequestMode(w.Mode)
	if mode != ModeRefreshOnly && mode != ModeRefreshAndPersist {
		return SyncRequestControl{}, errors.Protocolf("sync request control: mode %d out of range", mode)
	}
	return SyncRequestControl{Mode: mode, Cookie: w.Cookie, ReloadHint: w.ReloadHint}, nil
}

// EncodeSyncRequestControl is provided for symmetry and tests; the
// provider never originates this control, only decodes it.
func EncodeSyncRequestControl(c SyncRequestControl) ([]byte, error) {
	b, err := asn1.Marshal(syncRequestWire{
		Mode:       asn1.Enumerated(c.Mode),
		Cookie:     c.Cookie,
		ReloadHint: c.ReloadHint,
	})
	if err != nil {
		return nil, errors.Internal(err, "encoding sync request control")
	}
	return b, nil
}

// State is the sync-state control's state field.
type State int

const (
	StatePresent State = 0
	StateAdd     State = 1
	StateModify  State = 2
	StateDelete  State = 3
)

// SyncStateControl is attached to every entry streamed to a consumer.
//
//	syncStateValue ::= SEQUENCE {
//	    state       ENUMERATED,
//	    entryUUID   OCTET STRING (SIZE(16)),
//	    cookie      [0] IMPLICIT syncCookie OPTIONAL
//	}
type SyncStateControl struct {
	State     State
	EntryUUID uuid.UUID
	Cookie    []byte
}

type syncStateWire struct {
	State     asn1.Enumerated
	EntryUUID []byte
	Cookie    []byte `asn1:"optional,tag:0"`
}

// EncodeSyncStateControl encodes a per-entry sync-state control.
func EncodeSyncStateControl(c SyncStateControl) ([]byte, error) {
	idBytes := c.EntryUUID // [16]byte array; asn1 marshals as-is via []byte below
	b, err := asn1.Marshal(syncStateWire{
		State:     asn1.Enumerated(c.State),
		EntryUUID: idBytes[:],
		Cookie:    c.Cookie,
	})
	if err != nil {
		return nil, errors.Internal(err, "encoding sync state control")
	}
	return b, nil
}

// DecodeSyncStateControl decodes a sync-state control (used by tests and
// by any consumer-side tooling built atop this package).
func DecodeSyncStateControl(value []byte) (SyncStateControl, error) {
	var w syncStateWire
	rest, err := asn1.Unmarshal(value, &w)
	if err != nil {
		return SyncStateControl{}, errors.Protocolf("malformed sync state control: %v", err)
	}
	if len(rest) != 0 {
		return SyncStateControl{}, errors.Protocolf("malformed sync state control: trailing bytes")
	}
	id, err := uuid.FromBytes(w.EntryUUID)
	if err != nil {
		return SyncStateControl{}, errors.Protocolf("malformed sync state control: bad entryUUID: %v", err)
	}
	return SyncStateControl{State: State(w.State), EntryUUID: id, Cookie: w.Cookie}, nil
}

// SyncDoneControl terminates a refresh phase.
//
//	syncDoneValue ::= SEQUENCE {
//	    cookie          [0] IMPLICIT syncCookie OPTIONAL,
//	    refreshDeletes  BOOLEAN DEFAULT FALSE
//	}
type SyncDoneControl struct {
	Cookie         []byte
	RefreshDeletes bool
}

type syncDoneWire struct {
	Cookie         []byte `asn1:"optional,tag:0"`
	RefreshDeletes bool   `asn1:"optional,default:false"`
}

// EncodeSyncDoneControl encodes a refresh terminator control.
func EncodeSyncDoneControl(c SyncDoneControl) ([]byte, error) {
	b, err := asn1.Marshal(syncDoneWire{Cookie: c.Cookie, RefreshDeletes: c.RefreshDeletes})
	if err != nil {
		return nil, errors.Internal(err, "encoding sync done control")
	}
	return b, nil
}
