package common

const (
	ComponentSupervisor       = "supervisor"
	ComponentRPCClient        = "rpc-client"
	ComponentBlockFetcher     = "block-fetcher"
	ComponentBalanceFetcher   = "balance-fetcher"
	ComponentInternalTxFetcher = "internal-transaction-fetcher"
	ComponentTokenBalanceFetcher = "token-balance-fetcher"
	ComponentAddressExtraction = "address-extraction"
	ComponentImporter         = "importer"
	ComponentEventBus         = "event-bus"
	ComponentMaintenance      = "db-maintenance"
	ComponentAPI              = "api"
)

var AllComponents = map[string]struct{}{
	ComponentSupervisor:          {},
	ComponentRPCClient:           {},
	ComponentBlockFetcher:        {},
	ComponentBalanceFetcher:      {},
	ComponentInternalTxFetcher:   {},
	ComponentTokenBalanceFetcher: {},
	ComponentAddressExtraction:   {},
	ComponentImporter:            {},
	ComponentEventBus:            {},
	ComponentMaintenance:         {},
	ComponentAPI:                 {},
}
