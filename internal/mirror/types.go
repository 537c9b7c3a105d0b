package mirror

import "encoding/json"

// Links carries the cursor of a paginated collection.
type Links struct {
	Next *string `json:"next"`
}

type Account struct {
	Account                       string          `json:"account"`
	Alias                         *string         `json:"alias"`
	Balance                       AccountBalance  `json:"balance"`
	AutoRenewPeriod               *int64          `json:"auto_renew_period"`
	CreatedTimestamp              *string         `json:"created_timestamp"`
	DeclineReward                 bool            `json:"decline_reward"`
	Deleted                       bool            `json:"deleted"`
	EthereumNonce                 *int64          `json:"ethereum_nonce"`
	EVMAddress                    *string         `json:"evm_address"`
	ExpiryTimestamp               *string         `json:"expiry_timestamp"`
	Key                           json.RawMessage `json:"key"`
	MaxAutomaticTokenAssociations *int64          `json:"max_automatic_token_associations"`
	Memo                          *string         `json:"memo"`
	PendingReward                 int64           `json:"pending_reward"`
	ReceiverSigRequired           *bool           `json:"receiver_sig_required"`
	StakedAccountID               *string         `json:"staked_account_id"`
	StakedNodeID                  *int64          `json:"staked_node_id"`
	StakePeriodStart              *string         `json:"stake_period_start"`
}

type AccountBalance struct {
	Balance   int64          `json:"balance"`
	Timestamp string         `json:"timestamp"`
	Tokens    []TokenBalance `json:"tokens"`
}

type TokenBalance struct {
	TokenID string `json:"token_id"`
	Balance int64  `json:"balance"`
}

// TokenRelationship is one row of /accounts/{id}/tokens.
type TokenRelationship struct {
	TokenID              string `json:"token_id"`
	Balance              int64  `json:"balance"`
	Decimals             int    `json:"decimals"`
	AutomaticAssociation bool   `json:"automatic_association"`
	CreatedTimestamp     string `json:"created_timestamp"`
	FreezeStatus         string `json:"freeze_status"`
	KYCStatus            string `json:"kyc_status"`
}

type StakingReward struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Timestamp string `json:"timestamp"`
}

type Transaction struct {
	TransactionID       string          `json:"transaction_id"`
	ConsensusTimestamp  string          `json:"consensus_timestamp"`
	Type                string          `json:"type"`
	Result              string          `json:"result"`
	Name                string          `json:"name"`
	ChargedTxFee        int64           `json:"charged_tx_fee"`
	MaxFee              string          `json:"max_fee"`
	ValidStartTimestamp string          `json:"valid_start_timestamp"`
	Node                *string         `json:"node"`
	Nonce               int             `json:"nonce"`
	Scheduled           bool            `json:"scheduled"`
	Transfers           []Transfer      `json:"transfers"`
	TokenTransfers      []TokenTransfer `json:"token_transfers,omitempty"`
	NFTTransfers        []NFTTransfer   `json:"nft_transfers,omitempty"`
}

type Transfer struct {
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	IsApproval bool   `json:"is_approval"`
}

type TokenTransfer struct {
	TokenID    string `json:"token_id"`
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	IsApproval bool   `json:"is_approval"`
}

type NFTTransfer struct {
	TokenID           string `json:"token_id"`
	SenderAccountID   string `json:"sender_account_id"`
	ReceiverAccountID string `json:"receiver_account_id"`
	SerialNumber      int64  `json:"serial_number"`
	IsApproval        bool   `json:"is_approval"`
}

type Block struct {
	Count        int64     `json:"count"`
	GasUsed      *int64    `json:"gas_used"`
	HAPIVersion  string    `json:"hapi_version"`
	Hash         string    `json:"hash"`
	LogsBloom    *string   `json:"logs_bloom"`
	Name         string    `json:"name"`
	Number       int64     `json:"number"`
	PreviousHash string    `json:"previous_hash"`
	Size         *int64    `json:"size"`
	Timestamp    TimeRange `json:"timestamp"`
}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Token struct {
	TokenID           string `json:"token_id"`
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Decimals          string `json:"decimals"`
	Type              string `json:"type"`
	TotalSupply       string `json:"total_supply"`
	MaxSupply         string `json:"max_supply"`
	TreasuryAccountID string `json:"treasury_account_id"`
	CreatedTimestamp  string `json:"created_timestamp"`
	ModifiedTimestamp string `json:"modified_timestamp"`
	Deleted           bool   `json:"deleted"`
	Memo              string `json:"memo"`
	FreezeDefault     bool   `json:"freeze_default"`
	PauseStatus       string `json:"pause_status"`
	SupplyType        string `json:"supply_type"`
}

// TokenHolder is one row of /tokens/{id}/balances.
type TokenHolder struct {
	Account  string `json:"account"`
	Balance  int64  `json:"balance"`
	Decimals int    `json:"decimals"`
}

type NFT struct {
	AccountID         string  `json:"account_id"`
	CreatedTimestamp  string  `json:"created_timestamp"`
	DelegatingSpender *string `json:"delegating_spender"`
	Deleted           bool    `json:"deleted"`
	Metadata          string  `json:"metadata"`
	ModifiedTimestamp string  `json:"modified_timestamp"`
	SerialNumber      int64   `json:"serial_number"`
	Spender           *string `json:"spender"`
	TokenID           string  `json:"token_id"`
}

type NFTTransaction struct {
	ConsensusTimestamp string  `json:"consensus_timestamp"`
	IsApproval         bool    `json:"is_approval"`
	Nonce              int     `json:"nonce"`
	ReceiverAccountID  *string `json:"receiver_account_id"`
	SenderAccountID    *string `json:"sender_account_id"`
	TransactionID      string  `json:"transaction_id"`
	Type               string  `json:"type"`
}

type ExchangeRate struct {
	CurrentRate Rate   `json:"current_rate"`
	NextRate    Rate   `json:"next_rate"`
	Timestamp   string `json:"timestamp"`
}

type Rate struct {
	CentEquivalent int64 `json:"cent_equivalent"`
	HbarEquivalent int64 `json:"hbar_equivalent"`
	ExpirationTime int64 `json:"expiration_time"`
}

type NetworkFees struct {
	Fees      []Fee  `json:"fees"`
	Timestamp string `json:"timestamp"`
}

type Fee struct {
	Gas             int64  `json:"gas"`
	TransactionType string `json:"transaction_type"`
}

type NetworkNode struct {
	NodeID      int64           `json:"node_id"`
	NodeAccount string          `json:"node_account_id"`
	Description string          `json:"description"`
	FileID      string          `json:"file_id"`
	Memo        string          `json:"memo"`
	Stake       int64           `json:"stake"`
	Timestamp   TimeRange       `json:"timestamp"`
	Endpoints   json.RawMessage `json:"service_endpoints"`
}

type NetworkStake struct {
	MaxStakeRewarded               int64     `json:"max_stake_rewarded"`
	MaxStakingRewardRatePerHbar    int64     `json:"max_staking_reward_rate_per_hbar"`
	MaxTotalReward                 int64     `json:"max_total_reward"`
	NodeRewardFeeFraction          float64   `json:"node_reward_fee_fraction"`
	ReservedStakingRewards         int64     `json:"reserved_staking_rewards"`
	RewardBalanceThreshold         int64     `json:"reward_balance_threshold"`
	StakeTotal                     int64     `json:"stake_total"`
	StakingPeriod                  TimeRange `json:"staking_period"`
	StakingPeriodDuration          int64     `json:"staking_period_duration"`
	StakingPeriodsStored           int64     `json:"staking_periods_stored"`
	StakingRewardFeeFraction       float64   `json:"staking_reward_fee_fraction"`
	StakingRewardRate              int64     `json:"staking_reward_rate"`
	StakingStartThreshold          int64     `json:"staking_start_threshold"`
	UnreservedStakingRewardBalance int64     `json:"unreserved_staking_reward_balance"`
}

type NetworkSupply struct {
	ReleasedSupply string `json:"released_supply"`
	Timestamp      string `json:"timestamp"`
	TotalSupply    string `json:"total_supply"`
}

type Contract struct {
	ContractID       string    `json:"contract_id"`
	EVMAddress       string    `json:"evm_address"`
	AdminKey         any       `json:"admin_key"`
	AutoRenewAccount *string   `json:"auto_renew_account"`
	CreatedTimestamp string    `json:"created_timestamp"`
	Deleted          bool      `json:"deleted"`
	FileID           *string   `json:"file_id"`
	Memo             string    `json:"memo"`
	Timestamp        TimeRange `json:"timestamp"`
	Bytecode         string    `json:"bytecode,omitempty"`
}

type ContractResult struct {
	Address            string  `json:"address"`
	Amount             int64   `json:"amount"`
	BlockHash          string  `json:"block_hash"`
	BlockNumber        int64   `json:"block_number"`
	CallResult         string  `json:"call_result"`
	ContractID         string  `json:"contract_id"`
	ErrorMessage       *string `json:"error_message"`
	From               string  `json:"from"`
	FunctionParameters string  `json:"function_parameters"`
	GasUsed            int64   `json:"gas_used"`
	Hash               string  `json:"hash"`
	Result             string  `json:"result"`
	Status             string  `json:"status"`
	Timestamp          string  `json:"timestamp"`
	To                 *string `json:"to"`
}

// ContractLog is one entry of /contracts/{id}/results/logs. Topics are
// 0x-prefixed 32-byte hex words.
type ContractLog struct {
	Address          string   `json:"address"`
	BlockHash        string   `json:"block_hash"`
	BlockNumber      int64    `json:"block_number"`
	ContractID       string   `json:"contract_id"`
	Data             string   `json:"data"`
	Index            int      `json:"index"`
	RootContractID   string   `json:"root_contract_id"`
	Timestamp        string   `json:"timestamp"`
	Topics           []string `json:"topics"`
	TransactionHash  string   `json:"transaction_hash"`
	TransactionIndex int      `json:"transaction_index"`
}
