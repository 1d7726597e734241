package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "contribgate/pkg/domain-errors"
)

const (
	addrA = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	addrB = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

// TestParseAddress_Invariants validates the parsing invariant:
// "party addresses are well-formed and never the zero address"
func TestParseAddress_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE parties;--", true},
		{"Null byte injection", "0x70997970C51812dc3A010C7d01b50e0d17dc79\x00C8", true},
		{"Oversized input", "0x" + strings.Repeat("a", 1000), true},
		{"Too short", "0x7099", true},
		{"Empty string", "", true},
		{"Whitespace only", "   ", true},
		{"Zero address", "0x0000000000000000000000000000000000000000", true},

		{"Checksummed", addrA, false},
		{"Lowercase", strings.ToLower(addrA), false},
		{"Surrounding whitespace", "  " + addrB + " ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAddress_CanonicalForm(t *testing.T) {
	lower, err := ParseAddress(strings.ToLower(addrA))
	require.NoError(t, err)
	upper, err := ParseAddress(addrA)
	require.NoError(t, err)

	assert.Equal(t, lower, upper, "case must not create distinct parties")
	assert.Equal(t, addrA, lower.Hex())

	raw, err := json.Marshal(map[string]Address{"party": lower})
	require.NoError(t, err)
	assert.JSONEq(t, `{"party":"`+addrA+`"}`, string(raw))
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.5", "500000000000000000", false},
		{"1.1", "1100000000000000000", false},
		{"0.825", "825000000000000000", false},
		{"2", "2000000000000000000", false},
		{".25", "250000000000000000", false},
		{"0", "0", false},
		{"0.000000000000000001", "1", false},
		{"0.0000000000000000001", "", true},
		{"-1", "", true},
		{"1.", "", true},
		{"1e18", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	half := MustParseUnits("0.5")
	seven := MustParseUnits("0.7")

	sum, err := half.Add(seven)
	require.NoError(t, err)
	assert.Equal(t, "1.2", sum.Units())

	assert.True(t, half.SubFloor(seven).IsZero(), "subtraction saturates at zero")
	assert.Equal(t, "0.2", seven.SubFloor(half).Units())

	max, err := ParseAmount(strings.Repeat("9", 77))
	require.NoError(t, err)
	_, err = max.Add(max)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAmount))
}

func TestAmount_JSONAndSQL(t *testing.T) {
	a := MustParseUnits("0.5")

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"500000000000000000"`, string(raw))

	var back Amount
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, 0, a.Cmp(back))

	v, err := a.Value()
	require.NoError(t, err)
	var scanned Amount
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	assert.Equal(t, 0, a.Cmp(scanned))

	require.Error(t, scanned.Scan(int64(-1)))
}

// TestAssetCap_Scenarios reproduces the campaign cap table: a $3,300 cap is
// 1.1 ETH at $3,000 and 0.825 ETH at $4,000.
func TestAssetCap_Scenarios(t *testing.T) {
	capFiat := RateFromUnits(3300)

	tests := []struct {
		rate string
		want string
	}{
		{"3000", "1100000000000000000"},
		{"4000", "825000000000000000"},
		{"3300", "1000000000000000000"},
		// 3300/7000 = 0.471428571428571428571... rounds down
		{"7000", "471428571428571428"},
		{"0.000000000000000001", "3300000000000000000000000000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.rate, func(t *testing.T) {
			got, err := AssetCap(capFiat, MustParseRate(tt.rate))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	t.Run("zero rate is a configuration error", func(t *testing.T) {
		_, err := AssetCap(capFiat, Rate{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConfiguration))
	})
}

// TestAssetCap_NoDriftAcrossRateChanges encodes the boundary invariant: the
// cap depends only on the current rate, never on the path of previous rates.
func TestAssetCap_NoDriftAcrossRateChanges(t *testing.T) {
	capFiat := RateFromUnits(3300)
	direct, err := AssetCap(capFiat, MustParseRate("3000"))
	require.NoError(t, err)

	for _, r := range []string{"4000", "2999.99", "7000", "3000.000000000000000001", "3000"} {
		_, err := AssetCap(capFiat, MustParseRate(r))
		require.NoError(t, err)
	}
	again, err := AssetCap(capFiat, MustParseRate("3000"))
	require.NoError(t, err)
	assert.Equal(t, 0, direct.Cmp(again))
}

func TestRate_Formatting(t *testing.T) {
	assert.Equal(t, "3000", MustParseRate("3000").String())
	assert.Equal(t, "3000.5", MustParseRate("3000.50").String())
	assert.Equal(t, "3000000000000000000000", MustParseRate("3000").Raw())
	assert.True(t, RateFromUnits(3000).Equal(MustParseRate("3000")))
	assert.False(t, MustParseRate("0").IsPositive())
}

func TestRate_RejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "."} {
		_, err := ParseRate(in)
		require.Errorf(t, err, "input %q", in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}

	var r Rate
	require.Error(t, json.Unmarshal([]byte(`""`), &r))
	require.NoError(t, json.Unmarshal([]byte(`"0.5"`), &r))
	assert.Equal(t, "0.5", r.String())

	a, err := ParseUnits(".5")
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", a.String())
}

func TestReferenceID(t *testing.T) {
	party := MustParseAddress(addrA)
	amount := MustParseUnits("0.5")

	first := NewReferenceID(party, amount, uuid.New())
	second := NewReferenceID(party, amount, uuid.New())
	assert.NotEqual(t, first, second, "fresh nonces yield distinct references")
	assert.False(t, first.IsZero())

	nonce := uuid.New()
	assert.Equal(t, NewReferenceID(party, amount, nonce), NewReferenceID(party, amount, nonce),
		"the same inputs always hash to the same reference")
	assert.NotEqual(t, NewReferenceID(party, amount, nonce), NewReferenceID(party, MustParseUnits("0.6"), nonce))

	parsed, err := ParseReferenceID(first.Hex())
	require.NoError(t, err)
	assert.Equal(t, first, parsed)

	_, err = ParseReferenceID("0xnothex")
	require.Error(t, err)
}
