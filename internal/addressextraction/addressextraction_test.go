package addressextraction

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/models"
	"github.com/stretchr/testify/require"
)

func TestExtract_KeepsMaxBlockNumberPerAddress(t *testing.T) {
	addr := common.HexToAddress("0x1")
	blockA := uint64(10)
	blockB := uint64(20)

	bag := Bag{
		Transactions: []*models.Transaction{
			{From: addr, BlockNumber: &blockA},
			{From: addr, BlockNumber: &blockB},
		},
	}

	got := Extract(bag)
	require.Equal(t, uint64(20), got[addr].FetchedBalanceBlockNumber)
}

func TestExtract_RetainsContractCodeFromSuccessfulCreate(t *testing.T) {
	contract := common.HexToAddress("0x2")

	bag := Bag{
		InternalTransactions: []*models.InternalTransaction{
			{
				Type:                   models.InternalTxCreate,
				From:                   common.HexToAddress("0x1"),
				CreatedContractAddress: &contract,
				CreatedContractCode:    []byte{0xde, 0xad},
				BlockNumber:            5,
			},
		},
	}

	got := Extract(bag)
	require.Equal(t, []byte{0xde, 0xad}, got[contract].ContractCode)
}

func TestExtract_SkipsContractCodeFromFailedCreate(t *testing.T) {
	contract := common.HexToAddress("0x3")
	errMsg := "reverted"

	bag := Bag{
		InternalTransactions: []*models.InternalTransaction{
			{
				Type:                   models.InternalTxCreate,
				From:                   common.HexToAddress("0x1"),
				CreatedContractAddress: &contract,
				CreatedContractCode:    []byte{0xde, 0xad},
				Error:                  &errMsg,
				BlockNumber:            5,
			},
		},
	}

	got := Extract(bag)
	require.Nil(t, got[contract].ContractCode)
}

func TestExtract_DedupsAcrossSources(t *testing.T) {
	addr := common.HexToAddress("0x4")
	blockNum := uint64(7)

	bag := Bag{
		Logs: []*models.Log{
			{Address: addr, BlockNumber: 3},
		},
		TokenTransfers: []*models.TokenTransfer{
			{FromAddressHash: addr, ToAddressHash: common.HexToAddress("0x5"), TokenContractHash: common.HexToAddress("0x6"), BlockNumber: blockNum},
		},
	}

	got := Extract(bag)
	require.Len(t, got, 3)
	require.Equal(t, blockNum, got[addr].FetchedBalanceBlockNumber)
}
