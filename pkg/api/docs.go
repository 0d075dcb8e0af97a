// Package api provides the status/health HTTP surface for evmindexer.
// @title evmindexer status API
// @version 1.0
// @description Liveness and indexing-progress endpoints for evmindexer.
// @contact.name API Support
// @contact.url https://github.com/ledgerflow-xyz/evmindexer
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /
// @schemes http https
package api
