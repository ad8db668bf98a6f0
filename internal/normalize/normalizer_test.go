package normalize

import (
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1000000000000000000", "1000000000000000000", true},
		{"  42 ", "42", true},
		{"0x2a", "42", true},
		{"0X2A", "42", true},
		{"0x", "0", true},
		{"", "0", true},
		{"-5", "", false},
		{"12abc", "", false},
		{"0xzz", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseAmount(%q) ok=%v want %v", tc.in, ok, tc.ok)
		}
		if ok && got.String() != tc.want {
			t.Fatalf("ParseAmount(%q)=%s want %s", tc.in, got, tc.want)
		}
	}
}

func TestUnits(t *testing.T) {
	if f, ok := Units("1000000000000000000", 18); !ok || f != 1 {
		t.Fatalf("1 ether: %v %v", f, ok)
	}
	if f, ok := Units("2500000", 6); !ok || f != 2.5 {
		t.Fatalf("2.5 usdt: %v %v", f, ok)
	}
	if f, ok := Units("7", 0); !ok || f != 7 {
		t.Fatalf("zero decimals: %v %v", f, ok)
	}
	if _, ok := Units("nope", 18); ok {
		t.Fatal("malformed amount should fail")
	}
	if ToUnits(nil, 18) != 0 {
		t.Fatal("nil amount should be zero")
	}
}

func TestGwei(t *testing.T) {
	if g := Gwei("20000000000"); math.Abs(g-20) > 1e-9 {
		t.Fatalf("gwei=%v", g)
	}
	if Gwei("bad") != 0 {
		t.Fatal("malformed gas price should be 0")
	}
}

func TestIdentifier(t *testing.T) {
	if got := Identifier(" 0xAbC ", true); got != "0xabc" {
		t.Fatalf("evm id=%q", got)
	}
	if got := Identifier(" TXyz ", false); got != "TXyz" {
		t.Fatalf("tron id=%q", got)
	}
}
