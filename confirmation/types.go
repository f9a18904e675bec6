package confirmation

import "time"

type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeNotFound         Outcome = "not_found"
)

type ConfirmRequest struct {
	OrderId        int
	InstallmentIds []int
	SourceIp       string
	UserAgent      string
}

type ConfirmResult struct {
	Outcome    Outcome
	OrderFolio string
	// original confirmation time for OutcomeAlreadyConfirmed, this one for OutcomeConfirmed
	ConfirmedAt           *time.Time
	ConfirmedInstallments []int
}
