// Package wsserver implements the sync provider's outbound wire framing
// over a WebSocket connection: one connection per search (refresh-phase
// and, if it detaches, persist-phase), encoding every message as a JSON
// envelope carrying the BER-coded control octets as an opaque byte
// string — the same envelope-with-opaque-payload shape the teacher uses
// for its own peer protocol, generalized from a single Msg type to one
// envelope per outbound message kind since this protocol's messages
// don't share a single discriminated envelope the way the teacher's do.
package wsserver

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/subscriber"
	"github.com/dirsync/syncprov/protocol"
	"github.com/dirsync/syncprov/store"
)

// Conn wraps a gorilla/websocket.Conn to implement provider.Conn (the
// union of refresh.Sink and subscriber.Conn) — mirrors the teacher's
// gorillaSyncConn wrapper.
type Conn struct {
	ws *websocket.Conn
}

// New wraps an already-upgraded WebSocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.ws.Close() }

type msgType string

const (
	msgEntry msgType = "entry"
	msgInfo  msgType = "info"
	msgDone  msgType = "done"
)

type entryMsg struct {
	Type         msgType             `json:"type"`
	DN           string              `json:"dn"`
	Attrs        map[string][]string `json:"attrs,omitempty"`
	StateControl []byte              `json:"state_control"`
}

type infoMsg struct {
	Type           msgType `json:"type"`
	Tag            int     `json:"tag"`
	Cookie         []byte  `json:"cookie,omitempty"`
	RefreshDone    bool    `json:"refresh_done,omitempty"`
	RefreshDeletes bool    `json:"refresh_deletes,omitempty"`
	IDSet          []byte  `json:"id_set,omitempty"`
}

type doneMsg struct {
	Type           msgType `json:"type"`
	Cookie         []byte  `json:"cookie"`
	RefreshDeletes bool    `json:"refresh_deletes"`
}

// SendEntry implements refresh.Sink: every entry streamed during refresh
// is framed as an "add" sync-state control, since the refresh engine has
// already filtered out anything the consumer's cookie already reflects.
func (c *Conn) SendEntry(ctx context.Context, e *store.Entry, cookie []byte) error {
	sc, err := protocol.EncodeSyncStateControl(protocol.SyncStateControl{
		State: protocol.StateAdd, EntryUUID: e.UUID, Cookie: cookie,
	})
	if err != nil {
		return errors.Internal(err, "encoding sync-state control for refresh entry")
	}
	return c.ws.WriteJSON(&entryMsg{Type: msgEntry, DN: e.DN, Attrs: map[string][]string(e.Attrs), StateControl: sc})
}

// SendEvent implements subscriber.Conn: a live persist-phase event,
// framed with its mode's matching sync-state control.
func (c *Conn) SendEvent(ctx context.Context, e subscriber.OutgoingEntry) error {
	var state protocol.State
	switch e.Mode {
	case subscriber.ModeAdd:
		state = protocol.StateAdd
	case subscriber.ModeModify:
		state = protocol.StateModify
	case subscriber.ModeDelete:
		state = protocol.StateDelete
	}

	sc, err := protocol.EncodeSyncStateControl(protocol.SyncStateControl{
		State: state, EntryUUID: e.UUID, Cookie: e.Cookie,
	})
	if err != nil {
		return errors.Internal(err, "encoding sync-state control for live event")
	}
	return c.ws.WriteJSON(&entryMsg{Type: msgEntry, DN: e.DN, Attrs: e.Attrs, StateControl: sc})
}

// SendInfo implements refresh.Sink, framing one of the four sync-info
// intermediate messages.
func (c *Conn) SendInfo(ctx context.Context, msg protocol.SyncInfoMessage) error {
	out := &infoMsg{
		Type:           msgInfo,
		Tag:            int(msg.Tag),
		Cookie:         msg.Cookie,
		RefreshDone:    msg.RefreshDone,
		RefreshDeletes: msg.RefreshDeletes,
	}
	if msg.Tag == protocol.TagSyncIDSet {
		idSet, err := protocol.EncodeSyncIDSet(msg)
		if err != nil {
			return err
		}
		out.IDSet = idSet
	}
	return c.ws.WriteJSON(out)
}

// SendDone implements refresh.Sink, framing the terminal sync-done
// control.
func (c *Conn) SendDone(ctx context.Context, done protocol.SyncDoneControl) error {
	return c.ws.WriteJSON(&doneMsg{Type: msgDone, Cookie: done.Cookie, RefreshDeletes: done.RefreshDeletes})
}
