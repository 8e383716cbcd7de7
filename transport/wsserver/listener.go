package wsserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/protocol"
	"github.com/dirsync/syncprov/provider"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// searchRequest is the JSON envelope a consumer sends to open a sync
// search: the BER-coded sync control plus the plaintext base/scope/filter
// a real LDAP bind would otherwise carry as separate protocol fields.
type searchRequest struct {
	RID         string `json:"rid"`
	Control     []byte `json:"control"`
	BaseNDN     string `json:"base_ndn"`
	Scope       int    `json:"scope"`
	FilterAttr  string `json:"filter_attr"`
	FilterValue string `json:"filter_value,omitempty"`
}

// Listener accepts incoming WebSocket connections and drives the
// sync-provider search-path hook over each one, the WebSocket analogue
// of the teacher's HandleSyncWebSocket.
type Listener struct {
	p *provider.Provider
}

// NewListener returns a Listener driving p.
func NewListener(p *provider.Provider) *Listener {
	return &Listener{p: p}
}

// ServeHTTP upgrades the connection and runs one search-path hook
// invocation over it for the lifetime of the WebSocket.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.TransportWarnw("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer ws.Close()

	var req searchRequest
	if err := ws.ReadJSON(&req); err != nil {
		logger.TransportWarnw("failed to read search request", "err", err, "remote", r.RemoteAddr)
		return
	}

	sc, err := protocol.DecodeSyncRequestControl(req.Control)
	if err != nil {
		logger.TransportWarnw("malformed sync request control", "err", err, "rid", req.RID)
		return
	}

	var f scope.Filter
	if req.FilterValue != "" {
		f = scope.Equality(req.FilterAttr, req.FilterValue)
	} else {
		f = scope.Present(req.FilterAttr)
	}

	conn := New(ws)
	persist, err := l.p.BeginSearch(r.Context(), provider.BeginSearchRequest{
		RID:        req.RID,
		Mode:       sc.Mode,
		Cookie:     sc.Cookie,
		ReloadHint: sc.ReloadHint,
		BaseNDN:    req.BaseNDN,
		Scope:      scope.Scope(req.Scope),
		Filter:     f,
		FilterText: f.String(),
		Conn:       conn,
	})
	if err != nil {
		logger.TransportWarnw("search-path hook failed", "err", err, "rid", req.RID)
		return
	}
	if !persist {
		return
	}

	// Persist phase: the drainer now owns delivery on this connection.
	// Block here reading (and discarding) frames until a read fails,
	// i.e. the consumer disconnects, at which point tear the search
	// down. Every frame received, an abandon included, is discarded
	// without ending the loop — mirrors the teacher's read-loop-drives-lifetime pattern in
	// HandleSyncWebSocket/Peer.Reconcile.
	for {
		var msg json.RawMessage
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}
	}
	l.p.Abandon(req.RID)
}
