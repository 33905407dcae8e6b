package ledger

import (
	"errors"
	"fmt"

	"kasbon/backend/internal/domain"
)

// AccountCheck is the outcome of CheckAccount.
type AccountCheck struct {
	BalanceCents     int64
	OutstandingCents int64
	Problems         []string
}

// CheckAccount replays one account and lists every broken invariant. The
// account balance, once store credit is netted out, must equal what is still
// owed on its sales.
func CheckAccount(entries []domain.LedgerEntry, sales []domain.Sale, records []domain.CommissionRecord) AccountCheck {
	check := AccountCheck{}

	balance, err := Replay(entries)
	check.BalanceCents = balance
	if err != nil {
		var replayErr *ReplayError
		if errors.As(err, &replayErr) {
			check.Problems = append(check.Problems, replayErr.Error())
		} else {
			check.Problems = append(check.Problems, err.Error())
		}
	}

	check.OutstandingCents = Outstanding(sales)
	if owed := max(balance, 0); owed != check.OutstandingCents {
		check.Problems = append(check.Problems, fmt.Sprintf("ledger owes %d but sales are outstanding for %d", owed, check.OutstandingCents))
	}

	for _, sale := range sales {
		switch {
		case sale.OutstandingCents < 0 || sale.OutstandingCents > sale.TotalCents:
			check.Problems = append(check.Problems, fmt.Sprintf("sale %s outstanding %d outside [0,%d]", sale.ID, sale.OutstandingCents, sale.TotalCents))
		case sale.SettlementState == domain.SettlementPaid && sale.OutstandingCents != 0:
			check.Problems = append(check.Problems, fmt.Sprintf("sale %s is paid with %d outstanding", sale.ID, sale.OutstandingCents))
		case sale.SettlementState != domain.SettlementPaid && sale.OutstandingCents == 0:
			check.Problems = append(check.Problems, fmt.Sprintf("sale %s is %s with nothing outstanding", sale.ID, sale.SettlementState))
		}
	}

	for _, rec := range records {
		if rec.CollectedCents+rec.PendingCents != rec.TotalCents {
			check.Problems = append(check.Problems, fmt.Sprintf("commission %s collected %d + pending %d != total %d", rec.ID, rec.CollectedCents, rec.PendingCents, rec.TotalCents))
		}
		if rec.CollectedCents < 0 || rec.PendingCents < 0 {
			check.Problems = append(check.Problems, fmt.Sprintf("commission %s has a negative amount", rec.ID))
		}
		if (rec.State == domain.SettlementPaid) != (rec.PendingCents == 0) {
			check.Problems = append(check.Problems, fmt.Sprintf("commission %s state %s disagrees with pending %d", rec.ID, rec.State, rec.PendingCents))
		}
	}
	return check
}
