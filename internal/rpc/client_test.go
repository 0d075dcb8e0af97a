package rpc

import (
	"testing"

	pkgrpc "github.com/ledgerflow-xyz/evmindexer/pkg/rpc"
	"github.com/stretchr/testify/require"
)

// TestClientImplementsInterface verifies that Client implements the EthClient interface.
func TestClientImplementsInterface(t *testing.T) {
	var _ pkgrpc.EthClient = (*Client)(nil)
}

func TestToBlockNumArg(t *testing.T) {
	tests := []struct {
		name     string
		blockNum uint64
		want     string
	}{
		{name: "block 0", blockNum: 0, want: "0x0"},
		{name: "block 1", blockNum: 1, want: "0x1"},
		{name: "block 100", blockNum: 100, want: "0x64"},
		{name: "block 1000", blockNum: 1000, want: "0x3e8"},
		{name: "large block number", blockNum: 18000000, want: "0x112a880"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := toBlockNumArg(tt.blockNum)
			require.Equal(t, tt.want, result)
		})
	}
}

func TestParseHexUint64(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want uint64
	}{
		{name: "empty", in: "", want: 0},
		{name: "zero", in: "0x0", want: 0},
		{name: "small", in: "0x64", want: 100},
		{name: "large", in: "0x112a880", want: 18000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseHexUint64(tt.in))
		})
	}
}

func TestParseHexBig(t *testing.T) {
	require.Equal(t, "0", parseHexBig("").String())
	require.Equal(t, "0", parseHexBig("0x0").String())
	require.Equal(t, "255", parseHexBig("0xff").String())
}

func TestTraceAddressString(t *testing.T) {
	require.Equal(t, "", traceAddressString(nil))
	require.Equal(t, "0", traceAddressString([]int{0}))
	require.Equal(t, "0,1,2", traceAddressString([]int{0, 1, 2}))
}

func TestClassifyError(t *testing.T) {
	require.Equal(t, "", classifyError(nil))
}

func TestConnFor_FallsBackToDefault(t *testing.T) {
	c := &Client{
		cfg: Config{DefaultURL: "http://default"},
	}
	require.Nil(t, c.connFor("eth_call"))
}
