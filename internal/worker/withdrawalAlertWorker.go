// Every accepted withdrawal waits for an operator to send the funds. This
// worker emails NOTIFICATIONS_EMAIL so the request does not sit unnoticed.
package worker

import (
	"encoding/json"

	"github.com/cradoe/leverpad/internal/stream"
	"github.com/cradoe/leverpad/internal/withdrawal"
)

func (wk *Worker) WithdrawalAlertWorker() {
	wk.consume("withdrawal-alert", withdrawalAlertGroupID, stream.WithdrawalRequestedTopic, wk.sendWithdrawalAlert)
}

func (wk *Worker) sendWithdrawalAlert(message []byte) error {
	var event withdrawal.RequestedEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return errMalformed{err}
	}

	if wk.NotificationEmail == "" {
		wk.Logger.Warn("withdrawal alert skipped, no notification email configured", "id", event.ID)
		return nil
	}

	wk.Helper.BackgroundTask(nil, func() error {
		emailData := wk.Helper.NewEmailData()
		emailData["WalletAddress"] = event.WalletAddress
		emailData["Amount"] = event.Amount.StringFixed(4)
		emailData["RequestID"] = event.ID
		emailData["NewBalance"] = event.NewBalance.StringFixed(4)
		emailData["LockedCollateral"] = event.LockedCollateral.StringFixed(4)

		err := wk.Mailer.Send(wk.NotificationEmail, emailData, "withdrawal-requested.tmpl")
		if err != nil {
			wk.Logger.Error("error sending withdrawal alert", "id", event.ID, "error", err)
			return err
		}

		return nil
	})

	return nil
}
