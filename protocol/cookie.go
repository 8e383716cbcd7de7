// Package protocol encodes and decodes the wire structures of the sync
// protocol: the sync request/state/done controls and the sync-info
// intermediate messages (§6). Control values are BER/DER-encoded via
// encoding/asn1, matching the protocol's genuine LDAP/X.690 heritage;
// message framing over a transport is left to the transport package,
// which wraps these encoded values in a JSON envelope.
package protocol

import (
	"encoding/asn1"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/csn"
)

// Cookie is the decoded form of the opaque sync cookie: a replica id and
// the context CSN the subscriber had last seen. The core only ever works
// with this decoded form; EncodeCookie/DecodeCookie are the only place
// the wire format is known.
type Cookie struct {
	RID string
	CSN csn.CSN
}

// cookieWire is the ASN.1 SEQUENCE actually carried on the wire:
//
//	SEQUENCE {
//	    rid  PrintableString,  -- UTF8String if rid falls outside that set
//	    csn  OCTET STRING
//	}
type cookieWire struct {
	RID string
	CSN []byte
}

// EncodeCookie produces the opaque cookie octet-string for (rid, c).
func EncodeCookie(rid string, c csn.CSN) ([]byte, error) {
	b, err := asn1.Marshal(cookieWire{RID: rid, CSN: []byte(c)})
	if err != nil {
		return nil, errors.Internal(err, "encoding sync cookie")
	}
	return b, nil
}

// DecodeCookie parses a cookie previously produced by EncodeCookie. A
// malformed cookie is a protocol error, not an internal one: it means the
// consumer sent something this provider never issued.
func DecodeCookie(b []byte) (Cookie, error) {
	var w cookieWire
	rest, err := asn1.Unmarshal(b, &w)
	if err != nil {
		return Cookie{}, errors.Protocolf("malformed sync cookie: %v", err)
	}
	if len(rest) != 0 {
		return Cookie{}, errors.Protocolf("malformed sync cookie: trailing bytes")
	}
	return Cookie{RID: w.RID, CSN: csn.CSN(w.CSN)}, nil
}
