// Package lifecycle drives one deposit or withdrawal from validated input
// to a terminal stage. Each flow is an explicit state value advanced by
// Reduce; chain calls run as tasks that post messages back.
package lifecycle

import (
	"math/big"
)

type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

type Stage string

const (
	StageForm        Stage = "form"
	StageApprove     Stage = "approve"
	StageDeposit     Stage = "deposit"
	StageSuccess     Stage = "success"
	StageList        Stage = "list"
	StageWithdrawing Stage = "withdrawing"
)

// Step names the chain call a message reports on.
type Step string

const (
	StepApprove  Step = "approve"
	StepOpen     Step = "open_stream"
	StepWithdraw Step = "withdraw"
)

// State is one flow. Err on a success stage is informational only.
type State struct {
	ID       string       `json:"id"`
	Kind     Kind         `json:"kind"`
	Stage    Stage        `json:"stage"`
	Input    DepositInput `json:"input"`
	StreamID string       `json:"stream_id,omitempty"`

	PendingTx  string `json:"pending_tx,omitempty"`
	ApproveTx  string `json:"approve_tx,omitempty"`
	StreamTx   string `json:"stream_tx,omitempty"`
	WithdrawTx string `json:"withdraw_tx,omitempty"`

	Err     *Error  `json:"-"`
	History []Stage `json:"history"`

	approved bool
	cached   bool
}

// NewDeposit is a deposit flow waiting on its form.
func NewDeposit(id string) State {
	return State{ID: id, Kind: KindDeposit, Stage: StageForm, History: []Stage{StageForm}}
}

// NewWithdraw is a withdrawal flow on the stream list.
func NewWithdraw(id string) State {
	return State{ID: id, Kind: KindWithdraw, Stage: StageList, History: []Stage{StageList}}
}

// Busy reports whether a chain call is outstanding.
func (s State) Busy() bool {
	switch s.Stage {
	case StageApprove, StageDeposit, StageWithdrawing:
		return true
	}
	return false
}

// Finished reports whether the flow reached its terminal stage.
func (s State) Finished() bool { return s.Stage == StageSuccess }

func (s State) idle() Stage {
	if s.Kind == KindWithdraw {
		return StageList
	}
	return StageForm
}

func (s State) to(stage Stage) State {
	s.Stage = stage
	s.History = append(append([]Stage(nil), s.History...), stage)
	return s
}

// Msg is an input to Reduce.
type Msg interface{ msg() }

// Submit starts the flow: a deposit carries Input, a withdrawal StreamID.
type Submit struct {
	Input    DepositInput
	StreamID string
}

// Submitted reports that a transaction was handed to the node.
type Submitted struct {
	Step Step
	Hash string
}

// Confirmed reports a successful receipt. StreamID is the id recovered
// from the receipt logs, nil when none matched.
type Confirmed struct {
	Step     Step
	Hash     string
	StreamID *big.Int
	ParseErr error
}

// Failed reports a rejected, unsent or reverted transaction.
type Failed struct {
	Step Step
	Err  error
}

func (Submit) msg()    {}
func (Submitted) msg() {}
func (Confirmed) msg() {}
func (Failed) msg()    {}

// Cmd is a side effect Reduce asks the runtime to perform.
type Cmd interface{ cmd() }

// Approve grants the streaming contract allowance for Amount.
type Approve struct{ Amount string }

// OpenStream submits the stream creation.
type OpenStream struct{ Input DepositInput }

// Withdraw pulls the owed amount of StreamID.
type Withdraw struct{ StreamID string }

// CacheStream appends a recovered id to the user's stream cache.
type CacheStream struct{ StreamID string }

// Notify raises a transient notification.
type Notify struct{ Notice Notice }

func (Approve) cmd()     {}
func (OpenStream) cmd()  {}
func (Withdraw) cmd()    {}
func (CacheStream) cmd() {}
func (Notify) cmd()      {}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice describes a finished action for the notification feed.
type Notice struct {
	Level    Level
	Action   string
	Title    string
	Detail   string
	TxHash   string
	StreamID string
	FlowID   string
	Kind     ErrorKind     // set on errors
	Deposit  *DepositInput // set on a confirmed open
}

// Reduce is the single transition function for every flow. Messages that
// do not fit the current stage are ignored, which keeps re-delivered
// confirmations from firing their effects twice.
func Reduce(s State, m Msg) (State, []Cmd) {
	switch m := m.(type) {
	case Submit:
		return reduceSubmit(s, m)
	case Submitted:
		if !stepMatches(s.Stage, m.Step) {
			return s, nil
		}
		s.PendingTx = m.Hash
		switch m.Step {
		case StepApprove:
			s.ApproveTx = m.Hash
		case StepOpen:
			s.StreamTx = m.Hash
		case StepWithdraw:
			s.WithdrawTx = m.Hash
		}
		return s, nil
	case Confirmed:
		return reduceConfirmed(s, m)
	case Failed:
		if !stepMatches(s.Stage, m.Step) {
			return s, nil
		}
		s.PendingTx = ""
		s.Err = Classify(m.Err)
		s = s.to(s.idle())
		return s, []Cmd{Notify{Notice: Notice{
			Level:    LevelError,
			Action:   string(m.Step),
			Title:    failureTitle(s.Kind),
			Detail:   s.Err.Error(),
			Kind:     s.Err.Kind,
			StreamID: s.StreamID,
			FlowID:   s.ID,
		}}}
	}
	return s, nil
}

func reduceSubmit(s State, m Submit) (State, []Cmd) {
	if s.Stage != s.idle() {
		return s, nil
	}
	s.Err = nil
	switch s.Kind {
	case KindDeposit:
		s.Input = m.Input
		s.approved = false
		s = s.to(StageApprove)
		return s, []Cmd{Approve{Amount: m.Input.Amount}}
	case KindWithdraw:
		s.StreamID = m.StreamID
		s = s.to(StageWithdrawing)
		return s, []Cmd{Withdraw{StreamID: m.StreamID}}
	}
	return s, nil
}

func reduceConfirmed(s State, m Confirmed) (State, []Cmd) {
	if !stepMatches(s.Stage, m.Step) {
		return s, nil
	}
	switch m.Step {
	case StepApprove:
		if s.approved {
			return s, nil
		}
		s.approved = true
		s.PendingTx = ""
		s = s.to(StageDeposit)
		return s, []Cmd{OpenStream{Input: s.Input}}

	case StepOpen:
		s.PendingTx = ""
		var cmds []Cmd
		if m.StreamID != nil {
			s.StreamID = m.StreamID.String()
			if !s.cached {
				s.cached = true
				cmds = append(cmds, CacheStream{StreamID: s.StreamID})
			}
		} else {
			s.StreamID = ""
			if m.ParseErr != nil {
				s.Err = &Error{Kind: KindEventParse, Err: m.ParseErr}
			}
		}
		s = s.to(StageSuccess)
		in := s.Input
		cmds = append(cmds, Notify{Notice: Notice{
			Level:    LevelSuccess,
			Action:   string(StepOpen),
			Title:    "Stream opened",
			Detail:   streamLabel(s.StreamID),
			TxHash:   m.Hash,
			StreamID: s.StreamID,
			FlowID:   s.ID,
			Deposit:  &in,
		}})
		return s, cmds

	case StepWithdraw:
		s.PendingTx = ""
		s = s.to(StageSuccess)
		return s, []Cmd{Notify{Notice: Notice{
			Level:    LevelSuccess,
			Action:   string(StepWithdraw),
			Title:    "Withdrawal successful",
			Detail:   "Funds withdrawn from stream #" + s.StreamID,
			TxHash:   m.Hash,
			StreamID: s.StreamID,
			FlowID:   s.ID,
		}}}
	}
	return s, nil
}

func stepMatches(stage Stage, step Step) bool {
	switch step {
	case StepApprove:
		return stage == StageApprove
	case StepOpen:
		return stage == StageDeposit
	case StepWithdraw:
		return stage == StageWithdrawing
	}
	return false
}

func failureTitle(k Kind) string {
	if k == KindWithdraw {
		return "Withdrawal failed"
	}
	return "Deposit failed"
}

func streamLabel(id string) string {
	if id == "" {
		return "Stream #unknown"
	}
	return "Stream #" + id
}
