// Package ledger holds the money rules of a customer running account: how
// entries are posted, how a new sale opens, how a payment is spread over open
// sales and how pending commission is released. Everything here is pure; the
// caller owns persistence and locking.
package ledger

import (
	"errors"
	"fmt"

	"kasbon/backend/internal/domain"
)

var ErrInvalidEntry = errors.New("invalid ledger entry")

// Post stamps entry with the running balance that results from applying it on
// top of prevBalance.
func Post(prevBalance int64, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if entry.DebitCents < 0 || entry.CreditCents < 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: negative amount", ErrInvalidEntry)
	}
	if entry.DebitCents == 0 && entry.CreditCents == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: zero amount", ErrInvalidEntry)
	}
	if entry.DebitCents > 0 && entry.CreditCents > 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: entry must be one-sided", ErrInvalidEntry)
	}

	switch entry.Kind {
	case domain.EntrySaleDebit:
		if entry.CreditCents != 0 {
			return domain.LedgerEntry{}, fmt.Errorf("%w: sale entry cannot credit", ErrInvalidEntry)
		}
	case domain.EntryPaymentCredit:
		if entry.DebitCents != 0 {
			return domain.LedgerEntry{}, fmt.Errorf("%w: payment entry cannot debit", ErrInvalidEntry)
		}
	case domain.EntryAdjustment:
	default:
		return domain.LedgerEntry{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, entry.Kind)
	}
	if entry.BranchID == "" || entry.CustomerID == "" || entry.SourceID == "" {
		return domain.LedgerEntry{}, fmt.Errorf("%w: missing scope or source", ErrInvalidEntry)
	}

	balance, err := AddCents(prevBalance, entry.DebitCents-entry.CreditCents)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	entry.BalanceCents = balance
	return entry, nil
}

// ReplayError points at the first entry whose snapshot disagrees with the sum
// of everything before it.
type ReplayError struct {
	Index    int
	EntryID  string
	Expected int64
	Recorded int64
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("entry %d (%s) records balance %d, replay gives %d", e.Index, e.EntryID, e.Recorded, e.Expected)
}

// Replay sums entries in order and checks every snapshot along the way.
func Replay(entries []domain.LedgerEntry) (int64, error) {
	balance := int64(0)
	for i, entry := range entries {
		balance += entry.DebitCents - entry.CreditCents
		if entry.BalanceCents != balance {
			return balance, &ReplayError{Index: i, EntryID: entry.ID, Expected: balance, Recorded: entry.BalanceCents}
		}
	}
	return balance, nil
}

// StoreCredit is the unapplied customer money carried by a negative balance.
func StoreCredit(balance int64) int64 {
	if balance < 0 {
		return -balance
	}
	return 0
}
