package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScanStatus is the terminal state of one scan.
type ScanStatus string

const (
	// ScanCompleted means every requested kind was enumerated and evaluated.
	ScanCompleted ScanStatus = "completed"
	// ScanPartiallyFailed means the scan produced findings but at least one
	// kind was skipped or the deadline cut evaluation short.
	ScanPartiallyFailed ScanStatus = "partially_failed"
	// ScanFailed means the scan produced nothing trustworthy.
	ScanFailed ScanStatus = "failed"
)

// KindOutcome says whether a kind's findings can be trusted for this scan.
type KindOutcome string

const (
	// KindScanned means every resource of the kind was enumerated and
	// evaluated with a definite outcome.
	KindScanned KindOutcome = "scanned"
	// KindPartial means the kind was enumerated but some evaluations came
	// back Indeterminate or were abandoned at the deadline. Absence of a
	// finding proves nothing for those resources.
	KindPartial KindOutcome = "partial"
	// KindSkipped means enumeration itself failed.
	KindSkipped KindOutcome = "skipped"
)

// KindCoverage records what happened to one resource kind in one account.
// A kind with zero findings and outcome "scanned" is clean; a skipped kind
// says nothing about the account at all.
type KindCoverage struct {
	AccountID     string      `json:"account_id"`
	Kind          Kind        `json:"kind"`
	Outcome       KindOutcome `json:"outcome"`
	Reason        string      `json:"reason,omitempty"`
	Resources     int         `json:"resources"`
	Findings      int         `json:"findings"`
	Indeterminate int         `json:"indeterminate,omitempty"`
}

// ScanReport summarizes one scan: when it ran, what it covered, and what
// it found. Reports are persisted alongside findings so "no findings"
// can always be told apart from "could not check".
type ScanReport struct {
	ID             string          `json:"id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Status         ScanStatus      `json:"status"`
	RuleSetVersion string          `json:"rule_set_version,omitempty"`
	PricingVersion string          `json:"pricing_version,omitempty"`
	Coverage       []KindCoverage  `json:"coverage"`
	Resources      int             `json:"resources"`
	Findings       int             `json:"findings"`
	Suppressed     int             `json:"suppressed"`
	MonthlyWaste   decimal.Decimal `json:"monthly_waste"`

	// Warnings carries non-fatal findings about the scan itself, such as
	// dependency chains excluded for integrity problems or rules rejected
	// at load time.
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Duration is the wall-clock length of the scan.
func (r ScanReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Covered reports whether the scan actually checked the given kind for the
// given account. Only covered kinds may resolve previously open findings.
func (r ScanReport) Covered(accountID string, kind Kind) bool {
	for _, c := range r.Coverage {
		if c.AccountID == accountID && c.Kind == kind {
			return c.Outcome == KindScanned
		}
	}
	return false
}
