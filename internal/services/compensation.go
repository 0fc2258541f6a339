package services

// CompensationPolicy computes the penalty credit owed when the settlement
// window is breached. The amount is a flat figure configured per deployment,
// intentionally independent of the withdrawal size.
type CompensationPolicy struct {
	Amount float64
}

func NewCompensationPolicy(amount float64) *CompensationPolicy {
	return &CompensationPolicy{Amount: amount}
}

// Compensation returns the credit due for the given breach outcome.
func (p *CompensationPolicy) Compensation(slaBreached bool) float64 {
	if !slaBreached {
		return 0
	}
	return p.Amount
}
