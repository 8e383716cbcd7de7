package csn

import (
	"fmt"
	"sync"
	"time"
)

// Minter produces fresh CSNs for this server. A CSN is formatted so that
// byte comparison gives the same order as (time, counter, server id):
//
//	20060102150405.000000Z#counter#sid#mod
//
// counter disambiguates multiple CSNs minted within the same microsecond;
// sid is this server's replica id; mod is reserved (always 000000 here,
// since this provider does not track a separate "modifier count").
type Minter struct {
	mu      sync.Mutex
	sid     uint16
	lastSec string
	counter uint32
	now     func() time.Time
}

// NewMinter returns a Minter stamping CSNs with the given server id.
func NewMinter(sid uint16) *Minter {
	return &Minter{sid: sid, now: time.Now}
}

// Mint returns a new CSN guaranteed to be strictly greater than every CSN
// previously minted by this Minter.
func (m *Minter) Mint() CSN {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now().UTC().Format("20060102150405.000000Z")
	if ts == m.lastSec {
		m.counter++
	} else {
		m.lastSec = ts
		m.counter = 0
	}
	return CSN(fmt.Sprintf("%s#%06x#%03x#000000", ts, m.counter, m.sid))
}
