package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	pkgrpc "github.com/ledgerflow-xyz/evmindexer/pkg/rpc"
	"github.com/ledgerflow-xyz/evmindexer/tests/helpers"
	"github.com/stretchr/testify/require"
)

func insertConsensusBlock(t *testing.T, database *sql.DB, number uint64) {
	t.Helper()
	hash := ethcommon.BigToHash(new(big.Int).SetUint64(number))
	_, err := database.Exec(`
		INSERT INTO blocks (hash, number, consensus, parent_hash, miner, gas_used, gas_limit, size, nonce, timestamp)
		VALUES ($1, $2, true, $1, $1, 0, 0, 0, 0, now())
	`, hash.Hex(), number)
	require.NoError(t, err)
}

// stubEthClient answers FetchBlockByTag with a fixed number; every
// other method panics, since Status never calls them.
type stubEthClient struct {
	pkgrpc.EthClient
	tip uint64
	err error
}

func (s *stubEthClient) FetchBlockByTag(ctx context.Context, tag string) (uint64, error) {
	return s.tip, s.err
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, nil, logger.NewNopLogger())

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
}

func TestHandler_Status_NoStoredBlocks(t *testing.T) {
	database := helpers.NewTestDB(t, "api_status_empty")
	h := NewHandler(database, nil, logger.NewNopLogger())

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Zero(t, resp.LatestStoredBlock)
	require.Zero(t, resp.ChainTipBlock)
}

func TestHandler_Status_ReportsLatestStoredBlock(t *testing.T) {
	database := helpers.NewTestDB(t, "api_status_latest")
	insertConsensusBlock(t, database, 3)
	insertConsensusBlock(t, database, 7)

	h := NewHandler(database, nil, logger.NewNopLogger())

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 7, resp.LatestStoredBlock)
}

func TestHandler_Status_ComparesAgainstChainTip(t *testing.T) {
	database := helpers.NewTestDB(t, "api_status_tip")
	insertConsensusBlock(t, database, 90)

	h := NewHandler(database, &stubEthClient{tip: 100}, logger.NewNopLogger())

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 90, resp.LatestStoredBlock)
	require.EqualValues(t, 100, resp.ChainTipBlock)
	require.EqualValues(t, 10, resp.BlocksBehind)
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		data         any
		expectedBody string
	}{
		{
			name:         "success with simple data",
			status:       http.StatusOK,
			data:         map[string]string{"message": "success"},
			expectedBody: `{"message":"success"}`,
		},
		{
			name:         "error status",
			status:       http.StatusBadRequest,
			data:         ErrorResponse{Error: "Bad Request", Message: "bad request", Code: http.StatusBadRequest},
			expectedBody: `{"error":"Bad Request","message":"bad request","code":400}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			require.Equal(t, tt.status, w.Code)
			require.JSONEq(t, tt.expectedBody, w.Body.String())
			require.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondError(w, http.StatusInternalServerError, "boom")

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "boom", resp.Message)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}
