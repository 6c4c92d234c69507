package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type TaskState string

const (
	TaskPending   TaskState = "Pending"
	TaskExecuting TaskState = "Executing"
	TaskSuccess   TaskState = "Success"
	TaskReverted  TaskState = "Reverted"
	TaskCancelled TaskState = "Cancelled"
)

// rank orders states so a task only ever moves forward. Terminal states share
// the highest rank.
var taskStateRank = map[TaskState]int{
	TaskPending:   0,
	TaskExecuting: 1,
	TaskSuccess:   2,
	TaskReverted:  2,
	TaskCancelled: 2,
}

func (s TaskState) IsTerminal() bool {
	return s == TaskSuccess || s == TaskReverted || s == TaskCancelled
}

// RelayTask mirrors the relay's view of a submitted payload.
type RelayTask struct {
	ID               string      `json:"taskId"`
	State            TaskState   `json:"state"`
	LastCheckMessage string      `json:"lastCheckMessage,omitempty"`
	TransactionHash  common.Hash `json:"transactionHash"`
}

func NewRelayTask(id string) *RelayTask {
	return &RelayTask{ID: id, State: TaskPending}
}

func (t *RelayTask) IsTerminal() bool {
	return t.State.IsTerminal()
}

// Advance moves the task to next. Going backwards, or leaving a terminal
// state, is an error and leaves the task untouched.
func (t *RelayTask) Advance(next TaskState) error {
	if _, ok := taskStateRank[next]; !ok {
		return fmt.Errorf("unknown task state %q", next)
	}
	if t.State.IsTerminal() {
		if next == t.State {
			return nil
		}
		return fmt.Errorf("task %s already terminal in state %s", t.ID, t.State)
	}
	if taskStateRank[next] < taskStateRank[t.State] {
		return fmt.Errorf("task %s cannot move from %s back to %s", t.ID, t.State, next)
	}

	t.State = next
	return nil
}

// FeeEstimate is derived from a specific bundle. BundleHash pins it to that
// bundle so a stale estimate is never submitted with a different one.
type FeeEstimate struct {
	GasUsed     *big.Int       `json:"gasUsed"`
	GasUsedL1   *big.Int       `json:"gasUsedL1,omitempty"`
	FeeAmount   *big.Int       `json:"feeAmount"`
	FeeToken    common.Address `json:"feeToken"`
	NetworkCost *big.Int       `json:"networkCost,omitempty"`
	BundleHash  common.Hash    `json:"bundleHash"`
}

func ZeroEstimate(feeToken common.Address, bundleHash common.Hash) *FeeEstimate {
	return &FeeEstimate{
		GasUsed:    new(big.Int),
		FeeAmount:  new(big.Int),
		FeeToken:   feeToken,
		BundleHash: bundleHash,
	}
}

func (e *FeeEstimate) IsZero() bool {
	return e == nil || e.GasUsed == nil || e.GasUsed.Sign() == 0
}

func (e *FeeEstimate) Matches(bundleHash common.Hash) bool {
	return e != nil && e.BundleHash == bundleHash
}

// HashBundle fingerprints a bundle over every field that reaches the chain.
func HashBundle(b Bundle) common.Hash {
	if len(b) == 0 {
		return common.Hash{}
	}

	var buf []byte
	for _, c := range b {
		buf = append(buf, byte(c.Operation))
		buf = append(buf, c.To.Bytes()...)
		buf = append(buf, common.LeftPadBytes(c.ValueOrZero().Bytes(), 32)...)
		buf = append(buf, crypto.Keccak256(c.Data)...)
	}
	return crypto.Keccak256Hash(buf)
}
