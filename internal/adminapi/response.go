package adminapi

// Status is the outcome field every response envelope carries.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Response is the standard envelope for every admin endpoint.
type Response struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StatsResponse reports aggregate registry state.
type StatsResponse struct {
	Response
	NumFilters int `json:"num_filters"`
}

// FilterResponse reports one filter's lifecycle state.
type FilterResponse struct {
	Response
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	RefCount int32  `json:"ref_count"`
}

func newOKResponse() Response {
	return Response{Status: StatusOK}
}

func newErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
