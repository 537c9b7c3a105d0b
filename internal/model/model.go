package model

import "time"

// DepositRequest opens a stream from the captain to a counterpart agent.
type DepositRequest struct {
	ReceiverAgentID int64  `json:"receiver_agent_id"`
	Amount          string `json:"amount"`          // Human decimal, token units
	RatePerSecond   string `json:"rate_per_second"` // Human decimal, token units
	Asset           string `json:"asset,omitempty"` // Defaults to the configured token
}

// FlowError is the last failure a flow recorded.
type FlowError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Flow is a deposit or withdrawal in progress or just finished.
type Flow struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`  // deposit|withdraw
	Stage           string     `json:"stage"` // form|approve|deposit|success|list|withdrawing
	Busy            bool       `json:"busy"`
	ReceiverAgentID string     `json:"receiver_agent_id,omitempty"`
	Amount          string     `json:"amount,omitempty"`
	RatePerSecond   string     `json:"rate_per_second,omitempty"`
	Duration        string     `json:"duration,omitempty"`
	StreamID        string     `json:"stream_id,omitempty"`
	StreamLabel     string     `json:"stream_label,omitempty"`
	PendingTx       string     `json:"pending_tx,omitempty"`
	ApproveTx       string     `json:"approve_tx,omitempty"`
	StreamTx        string     `json:"stream_tx,omitempty"`
	WithdrawTx      string     `json:"withdraw_tx,omitempty"`
	ExplorerURL     string     `json:"explorer_url,omitempty"`
	History         []string   `json:"history"`
	Error           *FlowError `json:"error,omitempty"`
}

// Stream is one row of the withdrawal view. Amounts are smallest units
// with a human rendering alongside.
type Stream struct {
	ID                 string `json:"id"`
	SenderAgentID      string `json:"sender_agent_id,omitempty"`
	ReceiverAgentID    string `json:"receiver_agent_id,omitempty"`
	ReceiverName       string `json:"receiver_name,omitempty"`
	Asset              string `json:"asset,omitempty"`
	RatePerSecond      string `json:"rate_per_second,omitempty"`
	RateDisplay        string `json:"rate_display,omitempty"`
	SpendingCap        string `json:"spending_cap,omitempty"`
	TotalPaid          string `json:"total_paid,omitempty"`
	StartTime          int64  `json:"start_time,omitempty"`
	LastPaidTime       int64  `json:"last_paid_time,omitempty"`
	Closed             bool   `json:"closed"`
	Owed               string `json:"owed"`
	OwedDisplay        string `json:"owed_display"`
	RemainingAllowance string `json:"remaining_allowance,omitempty"`
	CanWithdraw        bool   `json:"can_withdraw"`
	Pending            bool   `json:"pending"`
	Error              string `json:"error,omitempty"`
}

type StreamList struct {
	Streams  []Stream `json:"streams"`
	Total    int      `json:"total"`
	Watching bool     `json:"watching"`
}

// Rate is the aggregate accrual across the user's open streams.
type Rate struct {
	RatePerSecond string    `json:"rate_per_second"`
	Display       string    `json:"display"`
	Streams       int       `json:"streams"`
	Counted       int       `json:"counted"`
	Failed        int       `json:"failed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Wallet struct {
	Connected        bool    `json:"connected"`
	Address          string  `json:"address,omitempty"`
	CaptainAgentID   string  `json:"captain_agent_id"`
	ConnectedAgents  []int64 `json:"connected_agents"`
	TokenAddress     string  `json:"token_address"`
	StreamingAddress string  `json:"streaming_address"`
}

type Duration struct {
	Amount        string `json:"amount"`
	RatePerSecond string `json:"rate_per_second"`
	Seconds       int64  `json:"seconds"`
	Display       string `json:"display"`
}

// ActionResult is returned when a push or close has been submitted.
type ActionResult struct {
	Action      string `json:"action"`
	StreamID    string `json:"stream_id"`
	TxHash      string `json:"tx_hash"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}
