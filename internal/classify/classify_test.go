package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIAleph/chaintrace/internal/chain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		addr   string
		label  string
		method string
		valid  bool
	}{
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "Ethereum (ETH)", MethodChecksum, true},
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", "Ethereum (ETH)", MethodPattern, false},
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "Ethereum (ETH)", MethodFormat, true},
		{"0x1234", "Ethereum (ETH)", MethodPattern, false},
		{"0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", "Ethereum (ETH)", MethodPattern, false},
		{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", "Bitcoin (BTC)", MethodChecksum, true},
		{"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", "Bitcoin (BTC)", MethodChecksum, true},
		{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb", "Bitcoin (BTC)", MethodPattern, false},
		{"bc1qnotreallyanaddress", "Bitcoin (BTC)", MethodPattern, false},
		{"bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a", "Bitcoin Cash (BCH)", MethodPattern, false},
		{"addr1qxy", "Cardano (ADA)", MethodPattern, false},
		{"cosmos1abc", "Cosmos (ATOM)", MethodPattern, false},
		{"Xabc", "Dash (DASH)", MethodPattern, false},
		{"DH5yaieqoZN36fDVciNyRueRGvGLR3mr7L", "Dogecoin (DOGE)", MethodPattern, false},
		{"LTC1", "Litecoin (LTC)", MethodPattern, false},
		{"Mabc", "Litecoin (LTC)", MethodPattern, false},
		{"rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", "Ripple (XRP)", MethodPattern, false},
		{"GABC", "Stellar (XLM)", MethodPattern, false},
		{"tz1abc", "Tezos (XTZ)", MethodPattern, false},
		{"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "Tron (TRX)", MethodChecksum, true},
		{"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u", "Tron (TRX)", MethodPattern, false},
		{"hello", UnknownLabel, MethodNone, false},
		{"", UnknownLabel, MethodNone, false},
	}
	for _, tc := range cases {
		t.Run(tc.addr, func(t *testing.T) {
			got := Classify(tc.addr)
			assert.Equal(t, tc.label, got.Label)
			assert.Equal(t, tc.method, got.Method)
			assert.Equal(t, tc.valid, got.Valid)
		})
	}
}

func TestChecksumAddress(t *testing.T) {
	assert.Equal(t,
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.Equal(t,
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		ChecksumAddress("0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359"))
}

func TestResultChain(t *testing.T) {
	c, ok := Classify("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed").Chain()
	require.True(t, ok)
	assert.Equal(t, chain.ETH, c)

	c, ok = Classify("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t").Chain()
	require.True(t, ok)
	assert.Equal(t, chain.TRON, c)

	_, ok = Classify("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa").Chain()
	assert.False(t, ok)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "Tron (TRX) (checksum)", Classify("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t").String())
	assert.Equal(t, UnknownLabel, Classify("???").String())
}

func TestClassifyListWithCustomClassifier(t *testing.T) {
	custom := Rules{Default[len(Default)-1]}
	got := ClassifyList(custom, " TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t, ,0xabc")
	require.Len(t, got, 2)
	assert.Equal(t, "Tron (TRX)", got[0].Label)
	assert.Equal(t, UnknownLabel, got[1].Label)
	assert.Equal(t, "0xabc", got[1].Address)
}
