package worker

import (
	"encoding/json"
	"fmt"

	"github.com/cradoe/leverpad/internal/deposit"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/stream"
)

func (wk *Worker) DepositAuditWorker() {
	wk.consume("deposit-audit", depositAuditGroupID, stream.DepositCreditedTopic, wk.auditDeposit)
}

func (wk *Worker) auditDeposit(message []byte) error {
	var event deposit.CreditedEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return errMalformed{err}
	}

	entity, entityID := repository.ActivityLogDepositEntity, event.TxID
	if event.OrderID != "" {
		entity, entityID = repository.ActivityLogOrderEntity, event.OrderID
	}

	_, err := wk.DB.Activity().Insert(wk.Ctx, &models.ActivityLog{
		WalletAddress: event.WalletAddress,
		Entity:        entity,
		EntityId:      entityID,
		Description:   fmt.Sprintf("credited %s SOL via %s, balance now %s", event.Amount, event.Source, event.NewBalance),
	})
	if err != nil {
		wk.Logger.Error("error logging deposit credit", "entity_id", entityID, "error", err)
		return err
	}

	return nil
}
