package response

// Health is the body of the health endpoint
type Health struct {
	Status string `json:"status"`
	// Component names the process answering
	Component string `json:"component,omitempty"`
}
