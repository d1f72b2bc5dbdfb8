package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

type RefreshResult struct {
	Changed      bool
	Defaulted    bool
	OverdueCount int
}

// Refresh re-derives installment statuses and late fees as of now.
//
// Late fees are recomputed from zero on every call, so repeated calls with the
// same now are idempotent. A loan that goes defaulted stays defaulted until it
// is paid off; catching up on arrears alone never returns it to active.
// Completed and cancelled loans are left untouched.
func (l *Loan) Refresh(now time.Time) RefreshResult {
	var res RefreshResult
	if l.Status.IsTerminal() {
		return res
	}

	lateFees := decimal.Zero
	for i := range l.Schedule {
		inst := &l.Schedule[i]
		if inst.Status == InstallmentPaid {
			continue
		}

		next := openStatus(*inst, now)
		if next == InstallmentOverdue {
			res.OverdueCount++
			if daysLate := int64(now.Sub(inst.DueDate) / day); daysLate > 0 {
				lateFees = lateFees.Add(inst.TotalAmount.Mul(l.LateFeePercentage).Div(hundred))
			}
		}
		if inst.Status != next {
			inst.Status = next
			res.Changed = true
		}
	}

	lateFees = lateFees.Round(moneyPlaces)
	if !lateFees.Equal(l.TotalLateFees) {
		l.TotalLateFees = lateFees
		res.Changed = true
	}

	if res.OverdueCount > 0 && l.Status == StatusActive {
		l.transition(StatusDefaulted, nil, now, "")
		res.Defaulted = true
		res.Changed = true
	}

	if res.Changed {
		l.UpdatedAt = now
	}
	return res
}

// openStatus derives the status of an installment that is not fully paid.
func openStatus(inst Installment, now time.Time) InstallmentStatus {
	switch {
	case now.After(inst.DueDate):
		return InstallmentOverdue
	case inst.PaidAmount.IsPositive():
		return InstallmentPartial
	default:
		return InstallmentPending
	}
}
