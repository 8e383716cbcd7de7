package protocol

import (
	"encoding/asn1"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/errors"
)

// SyncInfoTag distinguishes the four sync-info intermediate message kinds
// (§6), matching the tag values of the underlying CHOICE.
type SyncInfoTag int

const (
	TagNewCookie      SyncInfoTag = 0x80
	TagRefreshDelete  SyncInfoTag = 0xA1
	TagRefreshPresent SyncInfoTag = 0xA2
	TagSyncIDSet      SyncInfoTag = 0xA3
)

// SyncInfoMessage is one sync-info intermediate response. Exactly one of
// the fields is meaningful, selected by Tag; this mirrors the CHOICE in
// the wire grammar without requiring a Go interface per variant, which
// keeps JSON envelope encoding (transport package) simple.
type SyncInfoMessage struct {
	Tag SyncInfoTag

	// TagNewCookie
	Cookie []byte

	// TagRefreshDelete / TagRefreshPresent
	RefreshDone bool

	// TagSyncIDSet
	RefreshDeletes bool
	SyncUUIDs      []uuid.UUID
}

// NewCookieMessage builds a newCookie sync-info message.
func NewCookieMessage(cookie []byte) SyncInfoMessage {
	return SyncInfoMessage{Tag: TagNewCookie, Cookie: cookie}
}

// RefreshDeleteMessage builds a refreshDelete sync-info message, sent
// when the refresh phase was served from the session log and is now
// transitioning (a refresh that ran the present phase sends
// refreshPresent instead).
func RefreshDeleteMessage(cookie []byte, done bool) SyncInfoMessage {
	return SyncInfoMessage{Tag: TagRefreshDelete, Cookie: cookie, RefreshDone: done}
}

// RefreshPresentMessage builds a refreshPresent sync-info message.
func RefreshPresentMessage(cookie []byte, done bool) SyncInfoMessage {
	return SyncInfoMessage{Tag: TagRefreshPresent, Cookie: cookie, RefreshDone: done}
}

// SyncIDSetMessage builds a syncIdSet sync-info message carrying a batch
// of UUIDs (§4.2's session-log replay output, and §4.7's present-phase
// batches).
func SyncIDSetMessage(cookie []byte, refreshDeletes bool, ids []uuid.UUID) SyncInfoMessage {
	return SyncInfoMessage{Tag: TagSyncIDSet, Cookie: cookie, RefreshDeletes: refreshDeletes, SyncUUIDs: ids}
}

// idSetWire is the ASN.1 shape of a syncIdSet message body.
type idSetWire struct {
	Cookie         []byte   `asn1:"optional,tag:0"`
	RefreshDeletes bool     `asn1:"optional,default:false"`
	SyncUUIDs      [][]byte `asn1:"set"`
}

// EncodeSyncIDSet BER-encodes the body of a syncIdSet message. Other tags
// carry simpler bodies (cookie, optionally a bool) encoded inline by the
// transport layer; the UUID set is the only body complex enough to
// warrant its own ASN.1 struct.
func EncodeSyncIDSet(m SyncInfoMessage) ([]byte, error) {
	ids := make([][]byte, len(m.SyncUUIDs))
	for i, u := range m.SyncUUIDs {
		b := u
		ids[i] = b[:]
	}
	b, err := asn1.Marshal(idSetWire{Cookie: m.Cookie, RefreshDeletes: m.RefreshDeletes, SyncUUIDs: ids})
	if err != nil {
		return nil, errors.Internal(err, "encoding syncIdSet message")
	}
	return b, nil
}

// DecodeSyncIDSet parses a BER-encoded syncIdSet message body.
func DecodeSyncIDSet(value []byte) (SyncInfoMessage, error) {
	var w idSetWire
	rest, err := asn1.Unmarshal(value, &w)
	if err != nil {
		return SyncInfoMessage{}, errors.Protocolf("malformed syncIdSet message: %v", err)
	}
	if len(rest) != 0 {
		return SyncInfoMessage{}, errors.Protocolf("malformed syncIdSet message: trailing bytes")
	}
	ids := make([]uuid.UUID, len(w.SyncUUIDs))
	for i, b := range w.SyncUUIDs {
		id, err := uuid.FromBytes(b)
		if err != nil {
			return SyncInfoMessage{}, errors.Protocolf("malformed syncIdSet message: bad entryUUID: %v", err)
		}
		ids[i] = id
	}
	return SyncInfoMessage{Tag: TagSyncIDSet, Cookie: w.Cookie, RefreshDeletes: w.RefreshDeletes, SyncUUIDs: ids}, nil
}
