package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/csn"
)

func TestCookieRoundTrip(t *testing.T) {
	b, err := EncodeCookie("001", csn.CSN("20260101000000.000000Z#000000#001#000000"))
	require.NoError(t, err)

	decoded, err := DecodeCookie(b)
	require.NoError(t, err)
	assert.Equal(t, "001", decoded.RID)
	assert.Equal(t, csn.CSN("20260101000000.000000Z#000000#001#000000"), decoded.CSN)
}

func TestCookieRoundTripIsStable(t *testing.T) {
	b1, err := EncodeCookie("001", "c1")
	require.NoError(t, err)
	decoded, err := DecodeCookie(b1)
	require.NoError(t, err)
	b2, err := EncodeCookie(decoded.RID, decoded.CSN)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "compose(decode(compose(x))) == compose(x)")
}

func TestDecodeCookieRejectsGarbage(t *testing.T) {
	_, err := DecodeCookie([]byte{0xFF, 0x00, 0x01})
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
}

func TestSyncRequestControlRoundTrip(t *testing.T) {
	cookie, err := EncodeCookie("001", "c1")
	require.NoError(t, err)
	c := SyncRequestControl{Mode: ModeRefreshAndPersist, Cookie: cookie, ReloadHint: true}
	b, err := EncodeSyncRequestControl(c)
	require.NoError(t, err)

	decoded, err := DecodeSyncRequestControl(b)
	require.NoError(t, err)
	assert.Equal(t, c.Mode, decoded.Mode)
	assert.Equal(t, c.Cookie, decoded.Cookie)
	assert.True(t, decoded.ReloadHint)
}

func TestSyncRequestControlRejectsBadMode(t *testing.T) {
	c := SyncRequestControl{Mode: 99}
	b, err := EncodeSyncRequestControl(c)
	require.NoError(t, err)
	_, err = DecodeSyncRequestControl(b)
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
}

func TestSyncStateControlRoundTrip(t *testing.T) {
	id := uuid.New()
	c := SyncStateControl{State: StateModify, EntryUUID: id, Cookie: []byte("abc")}
	b, err := EncodeSyncStateControl(c)
	require.NoError(t, err)

	decoded, err := DecodeSyncStateControl(b)
	require.NoError(t, err)
	assert.Equal(t, StateModify, decoded.State)
	assert.Equal(t, id, decoded.EntryUUID)
	assert.Equal(t, []byte("abc"), decoded.Cookie)
}

func TestSyncIDSetRoundTrip(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	msg := SyncIDSetMessage([]byte("cookie"), true, ids)
	b, err := EncodeSyncIDSet(msg)
	require.NoError(t, err)

	decoded, err := DecodeSyncIDSet(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, decoded.SyncUUIDs)
	assert.True(t, decoded.RefreshDeletes)
}
