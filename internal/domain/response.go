package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Response codes sent back to clients.
const (
	CodeSuccess = 0
	CodeFailure = -1
)

// Messages for the fixed rejection and acknowledgement cases.
const (
	MsgInvalidAction     = "Invalid Action"
	MsgRateLimitExceeded = "Rate limit exceeded. Try again later."
	MsgPreformatted      = "Logged pre-formatted message"
)

// Response is the acknowledgement written back after every request.
type Response struct {
	Code    int
	Message string
}

// Success builds a code 0 response.
func Success(message string) Response {
	return Response{Code: CodeSuccess, Message: message}
}

// Failure builds a code -1 response.
func Failure(message string) Response {
	return Response{Code: CodeFailure, Message: message}
}

type wireResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MarshalJSON encodes the response as {"code":"<code>","message":"<message>"}.
// The code travels as a string.
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireResponse{Code: strconv.Itoa(r.Code), Message: r.Message})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	code, err := strconv.Atoi(w.Code)
	if err != nil {
		return fmt.Errorf("invalid response code %q: %w", w.Code, err)
	}
	r.Code = code
	r.Message = w.Message
	return nil
}
