package domain

// Device is a cast target announced by an external discovery agent.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	ControlURL string `json:"control_url"`
	Connected  bool   `json:"connected"`
}
