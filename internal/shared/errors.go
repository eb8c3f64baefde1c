package shared

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrDeviceUnavailable   = errors.New("audio input device unavailable")
	ErrPlaybackUnavailable = errors.New("audio output device unavailable")
	ErrReconnectExhausted  = errors.New("reconnect attempts exhausted")
	ErrNotConnected        = errors.New("not connected")
)

const DefaultRemoteErrorMessage = "Voice agent error"

// ConnectionError reports a failed handshake or an unexpected socket closure.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection " + e.Op + " failed"
	}
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RemoteError is an explicit error reported by the voice agent.
type RemoteError struct {
	Message string
}

func NewRemoteError(message string) *RemoteError {
	if message == "" {
		message = DefaultRemoteErrorMessage
	}
	return &RemoteError{Message: message}
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ProtocolError marks an inbound frame that could not be understood.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "protocol: " + e.Reason
	}
	return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func Conflict(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusConflict)
}

func ServiceUnavailable(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusServiceUnavailable)
}
