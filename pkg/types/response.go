package types

// SuccessEnvelope wraps every successful API payload.
type SuccessEnvelope struct {
	Status bool `json:"Status"`
	Data   any  `json:"Data,omitempty"`
}

// ErrorEnvelope carries a stable code and either a message or a field map.
type ErrorEnvelope struct {
	Status bool   `json:"Status"`
	Code   string `json:"Code"`
	Errors any    `json:"Errors"`
}
