// A credit that committed without its deposit row is published on
// deposit.record_missing. This worker writes the row. The insert is keyed
// on txid / order id, so a row that already exists closes the gap too.
package worker

import (
	"encoding/json"
	"errors"

	"github.com/cradoe/leverpad/internal/deposit"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/stream"
)

func (wk *Worker) ReconcileWorker() {
	wk.consume("reconcile", reconcileGroupID, stream.DepositRecordMissingTopic, wk.reconcileDeposit)
}

func (wk *Worker) reconcileDeposit(message []byte) error {
	var event deposit.RecordMissingEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return errMalformed{err}
	}
	if event.Key() == "" || event.WalletAddress == "" {
		return errMalformed{errors.New("event carries neither txid nor order id")}
	}

	record, err := wk.DB.Deposit().Insert(wk.Ctx, event.Deposit())
	if errors.Is(err, repository.ErrDuplicate) {
		wk.Logger.Info("deposit record already present, gap closed", "key", event.Key(), "wallet", event.WalletAddress)
		return nil
	}
	if err != nil {
		wk.Logger.Error("reconciliation insert failed", "key", event.Key(), "error", err)
		return err
	}

	wk.Logger.Info("deposit record reconciled",
		"id", record.ID,
		"key", event.Key(),
		"wallet", event.WalletAddress,
		"amount", event.Amount.String(),
		"original_error", event.Reason,
	)
	return nil
}
