package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/pkg/rpc"
)

// startTime anchors the process's uptime report.
var startTime = time.Now()

// Handler serves the status/health HTTP surface. It never exposes
// indexed chain data itself; a query/read API is a separate
// collaborator's concern.
type Handler struct {
	db  *sql.DB
	rpc rpc.EthClient
	log *logger.Logger
}

// NewHandler builds a Handler. rpcClient may be nil, in which case
// Status omits the chain-tip comparison.
func NewHandler(db *sql.DB, rpcClient rpc.EthClient, log *logger.Logger) *Handler {
	return &Handler{db: db, rpc: rpcClient, log: log}
}

// Health is a liveness probe: it never touches the database, so it
// stays up even while Status would report the database unreachable.
//
// @Summary Liveness probe
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Status is a readiness probe: it reports the highest consensus block
// stored and, when an RPC client is wired, how far behind the chain
// tip that is.
//
// @Summary Indexing status
// @Produce json
// @Success 200 {object} StatusResponse
// @Failure 500 {object} ErrorResponse
// @Router /status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	latest, err := h.latestStoredBlock(r.Context())
	if err != nil {
		h.log.Errorf("status: querying latest stored block: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query latest stored block")
		return
	}

	resp := StatusResponse{
		Status:            "ok",
		Timestamp:         time.Now(),
		LatestStoredBlock: latest,
		UptimeSeconds:     time.Since(startTime).Seconds(),
	}

	if h.rpc != nil {
		if tip, err := h.rpc.FetchBlockByTag(r.Context(), "latest"); err == nil {
			resp.ChainTipBlock = tip
			resp.BlocksBehind = int64(tip) - int64(latest)
		} else {
			h.log.Warnf("status: fetching chain tip: %v", err)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) latestStoredBlock(ctx context.Context) (uint64, error) {
	var latest sql.NullInt64
	err := h.db.QueryRowContext(ctx, `SELECT MAX(number) FROM blocks WHERE consensus`).Scan(&latest)
	if err != nil {
		return 0, err
	}
	if !latest.Valid {
		return 0, nil
	}
	return uint64(latest.Int64), nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message, Code: status})
}
