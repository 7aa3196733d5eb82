package state

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/storage"
)

func TestOverlayBuffersUntilCommit(t *testing.T) {
	base := storage.NewMemDB()
	overlay := NewOverlay(base)

	require.NoError(t, overlay.Put([]byte("alpha"), []byte("one")))
	require.Equal(t, 1, overlay.Pending())

	// The base must not see buffered writes.
	_, err := base.Get([]byte("alpha"))
	require.True(t, errors.Is(err, storage.ErrNotFound))

	got, err := overlay.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	require.NoError(t, overlay.Commit())
	require.Equal(t, 0, overlay.Pending())

	got, err = base.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)
}

func TestOverlayDiscardLeavesBaseUntouched(t *testing.T) {
	base := storage.NewMemDB()
	require.NoError(t, base.Put([]byte("alpha"), []byte("one")))

	overlay := NewOverlay(base)
	require.NoError(t, overlay.Put([]byte("alpha"), []byte("two")))
	require.NoError(t, overlay.Put([]byte("beta"), []byte("three")))
	require.NoError(t, overlay.Delete([]byte("alpha")))

	overlay.Discard()
	require.Equal(t, 0, overlay.Pending())

	got, err := overlay.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)
	_, err = overlay.Get([]byte("beta"))
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestOverlayDeleteShadowsBase(t *testing.T) {
	base := storage.NewMemDB()
	require.NoError(t, base.Put([]byte("alpha"), []byte("one")))

	overlay := NewOverlay(base)
	require.NoError(t, overlay.Delete([]byte("alpha")))

	_, err := overlay.Get([]byte("alpha"))
	require.True(t, errors.Is(err, storage.ErrNotFound))
	got, err := base.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	require.NoError(t, overlay.Commit())
	_, err = base.Get([]byte("alpha"))
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestOverlayWriteAfterDeleteWins(t *testing.T) {
	base := storage.NewMemDB()
	overlay := NewOverlay(base)

	require.NoError(t, overlay.Delete([]byte("alpha")))
	require.NoError(t, overlay.Put([]byte("alpha"), []byte("two")))

	got, err := overlay.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)

	require.NoError(t, overlay.Commit())
	got, err = base.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}

func TestOverlayReturnsCopies(t *testing.T) {
	base := storage.NewMemDB()
	overlay := NewOverlay(base)

	require.NoError(t, overlay.Put([]byte("alpha"), []byte("one")))
	got, err := overlay.Get([]byte("alpha"))
	require.NoError(t, err)
	got[0] = 'X'

	again, err := overlay.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), again)
}

func TestManagerOverOverlayRollsBack(t *testing.T) {
	base := storage.NewMemDB()
	committed := NewManager(base)
	require.NoError(t, committed.RegisterToken("ATOM", "", 6))

	overlay := NewOverlay(base)
	staged := NewManager(overlay)
	alice := testAddr(t, 0x01)

	require.NoError(t, staged.SetBalance("ATOM", alice, uint256.NewInt(77)))
	require.NoError(t, staged.PutMarket(testMarket("ATOM")))

	// Nothing leaks to the base before commit.
	balance, err := committed.GetBalance("ATOM", alice)
	require.NoError(t, err)
	require.Nil(t, balance)
	mkt, err := committed.GetMarket("ATOM")
	require.NoError(t, err)
	require.Nil(t, mkt)

	overlay.Discard()
	require.NoError(t, staged.SetBalance("ATOM", alice, uint256.NewInt(42)))
	require.NoError(t, overlay.Commit())

	balance, err = committed.GetBalance("ATOM", alice)
	require.NoError(t, err)
	require.True(t, balance.Eq(uint256.NewInt(42)))
	mkt, err = committed.GetMarket("ATOM")
	require.NoError(t, err)
	require.Nil(t, mkt)
}
