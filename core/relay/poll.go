package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/AvaProtocol/ap-bundler/core/chainio"
	"github.com/AvaProtocol/ap-bundler/model"
)

// PollUntilTerminal queries the task every PollInterval until the relay
// reports an outcome. Once a transaction hash is known the receipt is waited
// for on chain. Reverted and cancelled tasks become a *model.RelayError.
//
// A task the relay does not know yet, or a state it never documented, counts
// as pending. Polling stops when ctx is done, or after MaxWait when it is set.
func (c *Client) PollUntilTerminal(ctx context.Context, taskID string) (*types.Receipt, error) {
	if c.config.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.MaxWait)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(c.config.PollInterval), 1)
	task := model.NewRelayTask(taskID)

	for {
		if err := limiter.Wait(ctx); err != nil {
			// the limiter gives up early when the deadline falls before the
			// next slot, ctx is done by then anyway
			<-ctx.Done()
			return nil, ctx.Err()
		}

		status, err := c.TaskStatus(ctx, taskID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var netErr *model.NetworkError
			if errors.As(err, &netErr) && netErr.StatusCode == http.StatusNotFound {
				c.logger.Debug("relay task not indexed yet", "taskId", taskID, "message", netErr.Body)
				continue
			}
			return nil, err
		}
		c.metrics.IncRelayPoll(status.RawState)

		if err := task.Advance(status.State); err != nil {
			// relay nodes can answer out of order, keep the furthest state seen
			c.logger.Debug("ignoring stale relay state", "taskId", taskID, "state", status.RawState, "error", err)
			continue
		}
		task.LastCheckMessage = status.LastCheckMessage
		if status.TransactionHash != (common.Hash{}) {
			task.TransactionHash = status.TransactionHash
		}

		c.logger.Debug("relay task status", "taskId", taskID, "state", status.RawState, "message", status.LastCheckMessage)

		switch task.State {
		case model.TaskReverted, model.TaskCancelled:
			return nil, &model.RelayError{TaskID: taskID, State: task.State, Message: task.LastCheckMessage}

		case model.TaskExecuting, model.TaskSuccess:
			if task.TransactionHash == (common.Hash{}) {
				if task.State == model.TaskSuccess {
					return nil, fmt.Errorf("relay task %s succeeded without a transaction hash", taskID)
				}
				continue
			}
			return c.waitForReceipt(ctx, task)
		}
	}
}

func (c *Client) waitForReceipt(ctx context.Context, task *model.RelayTask) (*types.Receipt, error) {
	if c.chain == nil {
		return nil, errors.New("no chain reader to wait for the receipt")
	}

	receipt, err := chainio.WaitForReceipt(ctx, c.chain, task.TransactionHash, c.config.ReceiptInterval)
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &model.RelayError{
			TaskID:  task.ID,
			State:   model.TaskReverted,
			Message: fmt.Sprintf("transaction %s reverted on chain", task.TransactionHash.Hex()),
		}
	}

	c.logger.Info("relay task mined", "taskId", task.ID, "tx", task.TransactionHash.Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}
