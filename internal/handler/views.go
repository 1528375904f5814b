package handler

import (
	"time"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/shopspring/decimal"
)

type WithdrawalResponseData struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func withdrawalData(w *models.WithdrawalRequest) WithdrawalResponseData {
	return WithdrawalResponseData{
		ID:            w.ID,
		WalletAddress: w.WalletAddress,
		Amount:        toFloat(w.Amount),
		Status:        w.Status,
		Notes:         w.Notes.String,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func withdrawalList(requests []models.WithdrawalRequest) []WithdrawalResponseData {
	out := make([]WithdrawalResponseData, 0, len(requests))
	for i := range requests {
		out = append(out, withdrawalData(&requests[i]))
	}
	return out
}

type DepositResponseData struct {
	ID                 string    `json:"id"`
	WalletAddress      string    `json:"walletAddress"`
	Amount             float64   `json:"amount"`
	FiatAmountUsd      *float64  `json:"fiatAmountUsd,omitempty"`
	AssetSymbol        string    `json:"assetSymbol"`
	Status             string    `json:"status"`
	TxID               string    `json:"txid,omitempty"`
	OrderID            string    `json:"orderId,omitempty"`
	PlatformWallet     string    `json:"platformWallet,omitempty"`
	IsVerified         bool      `json:"isVerified"`
	VerificationSource string    `json:"verificationSource,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

func depositList(deposits []models.Deposit) []DepositResponseData {
	out := make([]DepositResponseData, 0, len(deposits))
	for _, d := range deposits {
		data := DepositResponseData{
			ID:                 d.ID,
			WalletAddress:      d.WalletAddress,
			Amount:             toFloat(d.Amount),
			AssetSymbol:        d.AssetSymbol,
			Status:             d.Status,
			TxID:               d.TxID.String,
			OrderID:            d.OrderID.String,
			PlatformWallet:     d.PlatformWallet.String,
			IsVerified:         d.IsVerified,
			VerificationSource: d.VerificationSource.String,
			CreatedAt:          d.CreatedAt,
		}
		if d.FiatAmountUsd.Valid {
			usd := toFloat(d.FiatAmountUsd.Decimal)
			data.FiatAmountUsd = &usd
		}
		out = append(out, data)
	}
	return out
}

type ProfileResponseData struct {
	ID               string    `json:"id"`
	WalletAddress    string    `json:"walletAddress"`
	Username         string    `json:"username,omitempty"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	Balance          float64   `json:"balance"`
	SolBalance       float64   `json:"solBalance"`
	LockedCollateral *float64  `json:"lockedCollateral,omitempty"`
	AvailableBalance *float64  `json:"availableBalance,omitempty"`
	IsBanned         bool      `json:"isBanned"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func profileData(p *models.Profile) ProfileResponseData {
	return ProfileResponseData{
		ID:            p.ID,
		WalletAddress: p.WalletAddress,
		Username:      p.Username.String,
		AvatarURL:     p.AvatarURL.String,
		Balance:       toFloat(p.Balance),
		SolBalance:    toFloat(p.SolBalance),
		IsBanned:      p.IsBanned,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// withAvailability adds the native balance not held as open collateral.
func (d ProfileResponseData) withAvailability(solBalance, locked decimal.Decimal) ProfileResponseData {
	lockedF := toFloat(locked)
	available := toFloat(decimal.Max(solBalance.Sub(locked), decimal.Zero))
	d.LockedCollateral = &lockedF
	d.AvailableBalance = &available
	return d
}
