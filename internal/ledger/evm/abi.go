package evm

// triggerRegistryABI is the subset of the trigger registry contract the
// monitor calls.
const triggerRegistryABI = `[
  {"type":"function","name":"nextTriggerId","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTrigger","stateMutability":"view",
   "inputs":[{"name":"triggerId","type":"uint256"}],
   "outputs":[
     {"name":"id","type":"uint256"},
     {"name":"user","type":"address"},
     {"name":"oracleIndex","type":"uint32"},
     {"name":"targetAsset","type":"string"},
     {"name":"inputAmount","type":"uint256"},
     {"name":"maxSlippage","type":"uint256"},
     {"name":"triggerPrice","type":"uint256"},
     {"name":"isAbove","type":"bool"},
     {"name":"status","type":"uint8"},
     {"name":"createdAt","type":"uint256"},
     {"name":"executionStartedAt","type":"uint256"},
     {"name":"outputAmount","type":"uint256"}
   ]},
  {"type":"function","name":"getOraclePrice","stateMutability":"view",
   "inputs":[{"name":"index","type":"uint32"}],
   "outputs":[{"name":"","type":"uint64"}]},
  {"type":"function","name":"getSettlementBalance","stateMutability":"view",
   "inputs":[{"name":"asset","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"startExecution","stateMutability":"nonpayable",
   "inputs":[{"name":"triggerId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"completeExecution","stateMutability":"nonpayable",
   "inputs":[{"name":"triggerId","type":"uint256"},{"name":"outputAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"markFailed","stateMutability":"nonpayable",
   "inputs":[{"name":"triggerId","type":"uint256"},{"name":"reason","type":"string"}],"outputs":[]}
]`

const (
	methodNextTriggerID        = "nextTriggerId"
	methodGetTrigger           = "getTrigger"
	methodGetOraclePrice       = "getOraclePrice"
	methodGetSettlementBalance = "getSettlementBalance"
	methodStartExecution       = "startExecution"
	methodCompleteExecution    = "completeExecution"
	methodMarkFailed           = "markFailed"
)

// getTrigger output positions.
const (
	outID = iota
	outUser
	outOracleIndex
	outTargetAsset
	outInputAmount
	outMaxSlippage
	outTriggerPrice
	outIsAbove
	outStatus
	outCreatedAt
	outExecutionStartedAt
	outOutputAmount

	triggerOutputs
)
