package dto

// AcceptedResponse is returned by the enumeration-resistant request endpoints.
type AcceptedResponse struct {
	Message string `json:"message"`
}

// ValidationResponse reports whether a token is still usable.
type ValidationResponse struct {
	Valid bool `json:"valid"`
}
