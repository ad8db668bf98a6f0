package explorer

import _ "embed"

// Recorded explorer payloads for source and end-to-end tests.

//go:embed etherscan_txlist.json
var EtherscanTxList []byte

//go:embed etherscan_empty.json
var EtherscanEmpty []byte

//go:embed trongrid_page1.json
var TronGridPage1 []byte

//go:embed trongrid_page2.json
var TronGridPage2 []byte
