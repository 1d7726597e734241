//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseAddress tests that parsing never panics on arbitrary input and
// always returns either a valid non-zero address or an error.
func FuzzParseAddress(f *testing.F) {
	f.Add("")
	f.Add("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	f.Add("0x0000000000000000000000000000000000000000")
	f.Add("not-an-address")
	f.Add("'; DROP TABLE parties;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		addr, err := ParseAddress(input)
		if err != nil {
			return
		}
		if addr.IsZero() {
			t.Error("parsed address must never be zero")
		}
		roundTrip, err := ParseAddress(addr.Hex())
		if err != nil {
			t.Errorf("valid address failed round-trip: %v", err)
		}
		if roundTrip != addr {
			t.Error("round-trip changed address value")
		}
	})
}

// FuzzParseUnits checks that any accepted quantity renders back to the same
// base-unit value.
func FuzzParseUnits(f *testing.F) {
	f.Add("0.5")
	f.Add("1.1")
	f.Add(".000000000000000001")
	f.Add("99999999999999999999999999999")
	f.Add("1..2")

	f.Fuzz(func(t *testing.T, input string) {
		a, err := ParseUnits(input)
		if err != nil {
			return
		}
		back, err := ParseUnits(a.Units())
		if err != nil {
			t.Fatalf("rendered units failed to parse: %q: %v", a.Units(), err)
		}
		if back.Cmp(a) != 0 {
			t.Errorf("round-trip changed amount: %s != %s", back, a)
		}
	})
}
