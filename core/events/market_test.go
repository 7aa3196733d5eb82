package events

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/crypto"
)

func eventAddr(t *testing.T, suffix byte) crypto.Address {
	t.Helper()
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = suffix
	addr, err := crypto.NewAddress(crypto.LendPrefix, raw)
	require.NoError(t, err)
	return addr
}

func TestMintedEventAttributes(t *testing.T) {
	supplier := eventAddr(t, 0x01)
	evt := MarketMinted{
		Symbol:   "ATOM",
		Supplier: supplier,
		Amount:   uint256.NewInt(1_000),
		Claims:   uint256.NewInt(950),
	}

	require.Equal(t, TypeMarketMinted, evt.EventType())
	flat := evt.Event()
	require.Equal(t, TypeMarketMinted, flat.Type)
	require.Equal(t, "ATOM", flat.Attributes["symbol"])
	require.Equal(t, supplier.String(), flat.Attributes["supplier"])
	require.Equal(t, "1000", flat.Attributes["amount"])
	require.Equal(t, "950", flat.Attributes["claims"])
}

func TestLiquidatedEventAttributes(t *testing.T) {
	liquidator := eventAddr(t, 0x02)
	borrower := eventAddr(t, 0x03)
	evt := MarketLiquidated{
		DebtSymbol:       "OSMO",
		CollateralSymbol: "ATOM",
		Liquidator:       liquidator,
		Borrower:         borrower,
		Repaid:           uint256.NewInt(500),
		SeizedClaims:     uint256.NewInt(540),
		LiquidatorClaims: uint256.NewInt(525),
		ProtocolClaims:   uint256.NewInt(15),
	}

	flat := evt.Event()
	require.Equal(t, TypeMarketLiquidated, flat.Type)
	require.Equal(t, "OSMO", flat.Attributes["debt_symbol"])
	require.Equal(t, "ATOM", flat.Attributes["collateral_symbol"])
	require.Equal(t, liquidator.String(), flat.Attributes["liquidator"])
	require.Equal(t, borrower.String(), flat.Attributes["borrower"])
	require.Equal(t, "540", flat.Attributes["seized_claims"])
	require.Equal(t, "15", flat.Attributes["protocol_claims"])
}

func TestEventNilAmountsRenderAsZero(t *testing.T) {
	evt := MarketRepaid{Symbol: "ATOM", Payer: eventAddr(t, 0x04), Borrower: eventAddr(t, 0x04)}
	flat := evt.Event()
	require.Equal(t, "0", flat.Attributes["amount"])
	require.Equal(t, "0", flat.Attributes["remaining"])
}

func TestParamsUpdatedRegistryWide(t *testing.T) {
	evt := ParamsUpdated{Admin: eventAddr(t, 0x05), Parameter: "close_factor", Value: "0.5"}
	flat := evt.Event()
	require.Equal(t, TypeParamsUpdated, flat.Type)
	require.Empty(t, flat.Attributes["symbol"])
	require.Equal(t, "close_factor", flat.Attributes["parameter"])
	require.Equal(t, "0.5", flat.Attributes["value"])
}
