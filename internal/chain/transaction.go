package chain

import (
	"slices"

	"github.com/shopspring/decimal"
)

const (
	// LamportsPerSol is the number of base units in one native-asset unit
	LamportsPerSol = 1_000_000_000

	SystemProgram = "system"
)

// Transaction is the part of a confirmed transaction that deposit
// verification looks at. AccountKeys is the static key list followed by any
// keys loaded from address lookup tables, so indexes line up with the
// balance snapshots.
type Transaction struct {
	Signature    string
	Slot         uint64
	BlockTime    int64
	Failed       bool
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
	Instructions []Instruction
}

// Instruction is a decoded top-level instruction. Only transfer-like
// instructions carry Source, Destination and Lamports.
type Instruction struct {
	Program     string
	ProgramID   string
	Type        string
	Source      string
	Destination string
	Lamports    uint64
}

// Involves reports whether address is one of the transaction's accounts.
func (tx *Transaction) Involves(address string) bool {
	return slices.Contains(tx.AccountKeys, address)
}

// Received is the native-asset amount the account gained, post minus pre.
// It is negative when the account paid out.
func (tx *Transaction) Received(address string) decimal.Decimal {
	pre, post, ok := tx.balances(address)
	if !ok {
		return decimal.Zero
	}
	return lamportsToSol(post).Sub(lamportsToSol(pre))
}

// Sent is the native-asset amount the account lost, pre minus post.
func (tx *Transaction) Sent(address string) decimal.Decimal {
	return tx.Received(address).Neg()
}

// TransfersTo sums the lamports of system-program transfer instructions whose
// destination is address.
func (tx *Transaction) TransfersTo(address string) decimal.Decimal {
	var total uint64
	for _, ix := range tx.Instructions {
		if ix.Program == SystemProgram && ix.Type == "transfer" && ix.Destination == address {
			total += ix.Lamports
		}
	}
	return lamportsToSol(total)
}

func (tx *Transaction) balances(address string) (uint64, uint64, bool) {
	i := slices.Index(tx.AccountKeys, address)
	if i < 0 || i >= len(tx.PreBalances) || i >= len(tx.PostBalances) {
		return 0, 0, false
	}
	return tx.PreBalances[i], tx.PostBalances[i], true
}

func lamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.New(int64(lamports), -9)
}
