package deposit

import (
	"testing"

	"github.com/cradoe/leverpad/internal/chain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const (
	userWallet = "UserWa11et111111111111111111111111111111111"
	homeWallet = "HomeWa11et1111111111111111111111111111111111"
	intlWallet = "Int1Wa11et111111111111111111111111111111111"
)

const lamports = chain.LamportsPerSol

// transferTx moves sent lamports out of from and received lamports into to.
func transferTx(from, to string, sent, received uint64) *chain.Transaction {
	return &chain.Transaction{
		Signature:    "sig",
		AccountKeys:  []string{from, to, "11111111111111111111111111111111"},
		PreBalances:  []uint64{10 * lamports, 2 * lamports, 1},
		PostBalances: []uint64{10*lamports - sent, 2*lamports + received, 1},
	}
}

func evidence(tx *chain.Transaction, claimed string) Evidence {
	c := decimal.RequireFromString(claimed)
	return Evidence{
		Tx:        tx,
		Source:    userWallet,
		Target:    homeWallet,
		Claimed:   c,
		Threshold: Threshold(c, decimal.RequireFromString("0.01")),
	}
}

func TestThreshold(t *testing.T) {
	got := Threshold(decimal.RequireFromString("2"), decimal.RequireFromString("0.01"))
	assert.True(t, decimal.RequireFromString("1.98").Equal(got), got.String())
}

func TestBalanceDeltaCheck(t *testing.T) {
	tests := []struct {
		name     string
		sent     uint64
		received uint64
		claimed  string
		accepted bool
	}{
		{"exact amount plus fee", lamports + 5000, lamports, "1", true},
		{"received at the tolerance edge", lamports, 990_000_000, "1", true},
		{"received just below tolerance", lamports, 989_000_000, "1", false},
		{"sender paid less than claimed", 980_000_000, lamports, "1", false},
		{"nothing moved", 0, 0, "0.5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := transferTx(userWallet, homeWallet, tt.sent, tt.received)
			out := BalanceDeltaCheck{}.Check(evidence(tx, tt.claimed))
			assert.Equal(t, tt.accepted, out.Accepted)
			assert.Equal(t, PathBalanceDelta, out.Path)
		})
	}
}

func TestInstructionScanCheck(t *testing.T) {
	// the target also paid out inside the same transaction, so its balance
	// delta understates what the user sent
	tx := transferTx(userWallet, homeWallet, lamports+5000, 400_000_000)
	tx.Instructions = []chain.Instruction{
		{Program: chain.SystemProgram, Type: "transfer", Source: userWallet, Destination: homeWallet, Lamports: lamports},
		{Program: chain.SystemProgram, Type: "transfer", Source: homeWallet, Destination: "Elsewhere", Lamports: 600_000_000},
	}

	ev := evidence(tx, "1")

	assert.False(t, BalanceDeltaCheck{}.Check(ev).Accepted)

	out := InstructionScanCheck{}.Check(ev)
	assert.True(t, out.Accepted)
	assert.True(t, out.SourceWaived)
	assert.Equal(t, PathInstructionScan, out.Path)
	assert.True(t, decimal.NewFromInt(1).Equal(out.TargetReceived))

	t.Run("source required and satisfied", func(t *testing.T) {
		out := InstructionScanCheck{RequireSource: true}.Check(ev)
		assert.True(t, out.Accepted)
		assert.False(t, out.SourceWaived)
	})

	t.Run("no transfers to the target", func(t *testing.T) {
		bare := transferTx(userWallet, homeWallet, lamports, 400_000_000)
		out := InstructionScanCheck{}.Check(evidence(bare, "1"))
		assert.False(t, out.Accepted)
		assert.True(t, out.TargetReceived.IsZero())
	})

	t.Run("transfers below the threshold", func(t *testing.T) {
		small := transferTx(userWallet, homeWallet, lamports, 400_000_000)
		small.Instructions = []chain.Instruction{
			{Program: chain.SystemProgram, Type: "transfer", Source: userWallet, Destination: homeWallet, Lamports: 500_000_000},
		}
		assert.False(t, InstructionScanCheck{}.Check(evidence(small, "1")).Accepted)
	})
}
