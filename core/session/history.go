package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/storage"
)

// SubmissionRecord is kept for every submission attempt of an account.
type SubmissionRecord struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	Account    common.Address    `json:"account"`
	Calls      []model.CallLabel `json:"calls,omitempty"`
	BundleHash common.Hash       `json:"bundleHash,omitempty"`
	GasToken   common.Address    `json:"gasToken"`
	FeeAmount  string            `json:"feeAmount,omitempty"`
	TaskIDs    []string          `json:"taskIds,omitempty"`
	TxHash     common.Hash       `json:"txHash,omitempty"`
	Outcome    string            `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

func newSubmissionRecord(sessionID string, account common.Address, prepared *Prepared) *SubmissionRecord {
	r := &SubmissionRecord{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Account:   account,
		StartedAt: time.Now().UTC(),
	}
	if prepared != nil {
		r.Calls = prepared.Bundle.Labels()
		r.BundleHash = model.HashBundle(prepared.Bundle)
		r.GasToken = prepared.GasToken
		if prepared.FeeEstimate != nil && prepared.FeeEstimate.FeeAmount != nil {
			r.FeeAmount = prepared.FeeEstimate.FeeAmount.String()
		}
	}
	return r
}

func (c *Controller) saveRecord(record *SubmissionRecord, outcome string, err error) {
	if c.history == nil {
		return
	}

	record.Outcome = outcome
	record.Error = model.SanitizeError(err)
	record.FinishedAt = time.Now().UTC()

	body, mErr := json.Marshal(record)
	if mErr != nil {
		c.logger.Error("cannot encode submission record", "id", record.ID, "error", mErr)
		return
	}
	if sErr := c.history.Set(storage.SubmissionKey(record.Account, record.ID), body); sErr != nil {
		c.logger.Error("cannot persist submission record", "id", record.ID, "error", sErr)
		return
	}
	if _, cErr := c.history.IncCounter(storage.SubmissionCounterKey(record.Account)); cErr != nil {
		c.logger.Warn("cannot count submission", "error", cErr)
	}
}

// ListSubmissions returns the submission records of account, newest first.
func ListSubmissions(db storage.Storage, account common.Address, limit int) ([]*SubmissionRecord, error) {
	items, err := db.GetByPrefix([]byte(storage.SubmissionPrefix(account)))
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	records := make([]*SubmissionRecord, 0, len(items))
	for _, item := range items {
		var r SubmissionRecord
		if err := json.Unmarshal(item.Value, &r); err != nil {
			return nil, fmt.Errorf("decode submission %s: %w", item.Key, err)
		}
		records = append(records, &r)
	}

	// ulid keys iterate oldest first
	records = lo.Reverse(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SubmissionCount is how many submissions were ever recorded for account.
func SubmissionCount(db storage.Storage, account common.Address) (uint64, error) {
	return db.GetCounter(storage.SubmissionCounterKey(account), 0)
}
