package responses

// SuccessEnvelope wraps every 2xx body. Effective lookups with no rule in force
// still answer with data set.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-visible part of a pkg/errors value. Details only
// appear for codes whose metadata allows them, such as the conflicting rule
// of a CONFLICT.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
