package seeders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

type seedPosition struct {
	TokenSymbol   string
	Direction     string
	Leverage      string
	CollateralSol string
	Status        string
}

type seedProfile struct {
	WalletAddress string
	Username      string
	SolBalance    string
	Positions     []seedPosition
}

var devProfiles = []seedProfile{
	{
		WalletAddress: "So11111111111111111111111111111111111111112",
		Username:      "trader_one",
		SolBalance:    "12.5",
		Positions: []seedPosition{
			{TokenSymbol: "BONK", Direction: "long", Leverage: "5", CollateralSol: "2", Status: "open"},
			{TokenSymbol: "WIF", Direction: "short", Leverage: "2", CollateralSol: "1.25", Status: "closing"},
			{TokenSymbol: "JUP", Direction: "long", Leverage: "3", CollateralSol: "4", Status: "closed"},
		},
	},
	{
		WalletAddress: "Vote111111111111111111111111111111111111111",
		Username:      "trader_two",
		SolBalance:    "0.75",
	},
}

// seedProfiles inserts the development wallets and their positions inside one
// transaction. Wallets that already exist are left untouched.
func (seeder *Seeder) seedProfiles() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := seeder.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range devProfiles {
		balance, err := decimal.NewFromString(p.SolBalance)
		if err != nil {
			return fmt.Errorf("seed balance for %s: %w", p.WalletAddress, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_profiles (wallet_address, username, sol_balance)
			VALUES ($1, $2, $3)
			ON CONFLICT (wallet_address) DO NOTHING`,
			p.WalletAddress, p.Username, balance)
		if err != nil {
			return fmt.Errorf("failed to insert profile %s: %w", p.WalletAddress, err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if inserted == 0 {
			seeder.Logger.Info("profile already seeded", "wallet", p.WalletAddress)
			continue
		}

		for _, pos := range p.Positions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO trading_positions (wallet_address, token_symbol, direction, leverage, collateral_sol, status)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.WalletAddress, pos.TokenSymbol, pos.Direction, pos.Leverage, pos.CollateralSol, pos.Status)
			if err != nil {
				return fmt.Errorf("failed to insert position for %s: %w", p.WalletAddress, err)
			}
		}

		seeder.Logger.Info("profile seeded", "wallet", p.WalletAddress, "positions", len(p.Positions))
	}

	return tx.Commit()
}
