package wrapper

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSONResult is the response envelope of every API route: {status, data?, error?}.
type JSONResult struct {
	Code  int         `json:"status"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorBody  `json:"error,omitempty"`
}

func ResponseSuccess(httpCode int, data interface{}) JSONResult {
	return JSONResult{
		Code: httpCode,
		Data: data,
	}
}

func ResponseFailed(httpCode int, code string, message string) JSONResult {
	return JSONResult{
		Code:  httpCode,
		Error: &ErrorBody{Code: code, Message: message},
	}
}
