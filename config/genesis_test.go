package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/crypto"
	"lendcore/native/market"
)

const testBlocksPerYear = uint64(6_307_200)

func testAddress(t *testing.T, suffix byte) string {
	t.Helper()
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0x5e
	raw[crypto.AddressLength-1] = suffix
	addr, err := crypto.NewAddress(crypto.LendPrefix, raw)
	require.NoError(t, err)
	return addr.String()
}

func writeGenesis(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadGenesisRoundTrip(t *testing.T) {
	admin := testAddress(t, 0x01)
	funded := testAddress(t, 0x02)
	path := writeGenesis(t, fmt.Sprintf(`registry: testnet
params:
  close_factor: "0.4"
  liquidation_incentive: "1.1"
  protocol_seize_share: "0.02"
tokens:
  - symbol: atom
    name: Cosmos Hub Atom
    decimals: 6
  - symbol: OSMO
    name: Osmosis
    decimals: 6
roles:
  - role: market.admin
    addresses:
      - %s
balances:
  - address: %s
    symbol: ATOM
    amount: "1000000"
markets:
  - symbol: ATOM
    collateral_factor: "0.75"
    reserve_factor: "0.1"
    supply_cap: "5000000"
    rate_model:
      base_rate_per_year: "0.02"
      multiplier_per_year: "0.1"
      jump_multiplier_per_year: "1.09"
      kink: "0.8"
  - symbol: OSMO
    collateral_factor: "0.5"
    reserve_factor: "0.1"
    rate_model:
      base_rate_per_year: "0.01"
`, admin, funded))

	spec, digest, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Len(t, digest, 64)
	require.Equal(t, "testnet", spec.Registry)
	// Symbols canonicalize on load.
	require.Equal(t, "ATOM", spec.Tokens[0].Symbol)

	genesis, err := spec.Build(testBlocksPerYear)
	require.NoError(t, err)
	require.Equal(t, "testnet", genesis.Registry)

	require.NotNil(t, genesis.Params)
	require.True(t, genesis.Params.CloseFactor.Eq(market.MustExp("0.4")))
	require.True(t, genesis.Params.LiquidationIncentive.Eq(market.MustExp("1.1")))
	require.True(t, genesis.Params.ProtocolSeizeShare.Eq(market.MustExp("0.02")))

	require.Len(t, genesis.Tokens, 2)
	require.Equal(t, uint8(6), genesis.Tokens[0].Decimals)

	require.Len(t, genesis.Roles, 1)
	require.Equal(t, "market.admin", genesis.Roles[0].Role)
	require.Equal(t, admin, genesis.Roles[0].Addresses[0].String())

	require.Len(t, genesis.Balances, 1)
	require.Equal(t, "ATOM", genesis.Balances[0].Symbol)
	require.Equal(t, "1000000", genesis.Balances[0].Amount.Dec())

	require.Len(t, genesis.Markets, 2)
	atom := genesis.Markets[0]
	require.Equal(t, "ATOM", atom.Symbol)
	require.True(t, atom.CollateralFactor.Eq(market.MustExp("0.75")))
	require.Equal(t, "5000000", atom.SupplyCap.Dec())
	require.Nil(t, atom.BorrowCap)

	wantBase := market.RatePerBlock(market.MustExp("0.02"), testBlocksPerYear)
	require.True(t, atom.RateModel.BaseRatePerBlock.Eq(wantBase))
	wantJump := market.RatePerBlock(market.MustExp("1.09"), testBlocksPerYear)
	require.True(t, atom.RateModel.JumpMultiplierPerBlock.Eq(wantJump))
	require.True(t, atom.RateModel.Kink.Eq(market.MustExp("0.8")))

	// Unset rate fields parse as zero and the kink defaults to 1.
	osmo := genesis.Markets[1]
	require.True(t, osmo.RateModel.MultiplierPerBlock.IsZero())
	require.True(t, osmo.RateModel.JumpMultiplierPerBlock.IsZero())
	require.True(t, osmo.RateModel.Kink.Eq(market.MustExp("1")))
}

func TestLoadGenesisNormalizesTokenNames(t *testing.T) {
	// The accent arrives decomposed (e + combining acute) and must load in
	// composed form.
	decomposed := "Euro Béta"
	path := writeGenesis(t, fmt.Sprintf(`tokens:
  - symbol: EURC
    name: %s
    decimals: 6
`, decomposed))

	spec, _, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, "Euro Béta", spec.Tokens[0].Name)
}

func TestLoadGenesisDigestTracksContent(t *testing.T) {
	contents := `registry: main
tokens:
  - symbol: ATOM
    name: Atom
    decimals: 6
markets:
  - symbol: ATOM
    collateral_factor: "0.5"
    reserve_factor: "0.1"
    rate_model:
      base_rate_per_year: "0.02"
`
	path := writeGenesis(t, contents)
	_, first, err := LoadGenesis(path)
	require.NoError(t, err)

	_, again, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, first, again)

	require.NoError(t, os.WriteFile(path, []byte(contents+"# touched\n"), 0o644))
	_, changed, err := LoadGenesis(path)
	require.NoError(t, err)
	require.NotEqual(t, first, changed)
}

func TestLoadGenesisStructuralValidation(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"no tokens", "registry: main\nmarkets: []\n"},
		{"duplicate token", `tokens:
  - symbol: ATOM
    name: A
    decimals: 6
  - symbol: atom
    name: B
    decimals: 6
`},
		{"market without token", `tokens:
  - symbol: ATOM
    name: A
    decimals: 6
markets:
  - symbol: OSMO
    collateral_factor: "0.5"
    reserve_factor: "0.1"
    rate_model: {}
`},
		{"balance unknown token", `tokens:
  - symbol: ATOM
    name: A
    decimals: 6
balances:
  - address: lend1xyz
    symbol: OSMO
    amount: "10"
`},
		{"decimals overflow", `tokens:
  - symbol: ATOM
    name: A
    decimals: 19
`},
		{"role without members", `tokens:
  - symbol: ATOM
    name: A
    decimals: 6
roles:
  - role: market.admin
    addresses: []
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeGenesis(t, tc.contents)
			_, _, err := LoadGenesis(path)
			require.Error(t, err)
		})
	}
}

func TestGenesisBuildEnforcesBounds(t *testing.T) {
	base := func() *GenesisSpec {
		return &GenesisSpec{
			Registry: "main",
			Tokens:   []TokenSpec{{Symbol: "ATOM", Name: "Atom", Decimals: 6}},
			Markets: []MarketSpec{{
				Symbol:           "ATOM",
				CollateralFactor: "0.75",
				ReserveFactor:    "0.1",
				RateModel:        RateModelSpec{BaseRatePerYear: "0.02"},
			}},
		}
	}

	spec := base()
	spec.Markets[0].CollateralFactor = "0.95"
	_, err := spec.Build(testBlocksPerYear)
	require.ErrorIs(t, err, market.ErrCollateralFactorBounds)

	spec = base()
	spec.Params = &ParamsSpec{CloseFactor: "0.95"}
	_, err = spec.Build(testBlocksPerYear)
	require.ErrorIs(t, err, market.ErrCloseFactorBounds)

	spec = base()
	spec.Markets[0].RateModel.Kink = "1.5"
	_, err = spec.Build(testBlocksPerYear)
	require.ErrorContains(t, err, "kink")

	spec = base()
	spec.Balances = []BalanceSpec{{Address: "not-bech32", Symbol: "ATOM", Amount: "10"}}
	_, err = spec.Build(testBlocksPerYear)
	require.ErrorContains(t, err, "decode address")

	spec = base()
	_, err = spec.Build(0)
	require.ErrorContains(t, err, "blocks per year")
}
