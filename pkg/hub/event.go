package hub

// Event types pushed to subscribed connections.
const (
	EventNewRate      = "new_rate"
	EventTotalSavings = "total_savings"
	EventInitialRates = "initial_rates"
	EventAnnounced    = "announced"
	EventError        = "error"
)

// Event is the envelope every server-to-client message travels in.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// TotalSavingsPayload carries an account's updated savings total.
type TotalSavingsPayload struct {
	TotalSavings float64 `json:"totalSavings"`
}
