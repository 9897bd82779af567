// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the closed request and response vocabulary spoken
// over the daemon socket and its binary encoding.
//
// A connection carries exactly one request and one response. The client
// writes an encoded request, half-closes its write side and reads the
// response until the server closes the connection. There is no other framing.
package protocol

import "fmt"

// Error messages carried in ErrorResponse.
const (
	MsgInvalidPassword  = "invalid password"
	MsgUnauthorized     = "unauthorized"
	MsgNotFound         = "not found"
	MsgTooManyAttempts  = "too many unlock attempts"
	MsgInternal         = "internal error"
	MsgSecretTooLarge   = "secret too large"
	MsgTooManySecrets   = "too many secrets"
	MsgPermissionDenied = "permission denied"
)

// MaxMessageSize bounds an encoded message. Anything larger is rejected
// before decoding.
const MaxMessageSize = 2 << 20

// MaxValueSize is the largest Set value that always fits in a message. The
// remainder of MaxMessageSize is left for the key and the framing.
const MaxValueSize = MaxMessageSize - 64<<10

// Request is one of UnlockRequest, LockRequest, SetRequest or GetRequest.
type Request interface {
	// Kind returns the short name of the request, used in logs and metrics.
	Kind() string
	isRequest()
}

// UnlockRequest asks the daemon to open the gate with a master password.
type UnlockRequest struct {
	Password string
}

// LockRequest closes the gate.
type LockRequest struct{}

// SetRequest stores Value under Key.
type SetRequest struct {
	Key   string
	Value string
}

// GetRequest reads the value stored under Key.
type GetRequest struct {
	Key string
}

func (*UnlockRequest) Kind() string { return "unlock" }
func (*LockRequest) Kind() string   { return "lock" }
func (*SetRequest) Kind() string    { return "set" }
func (*GetRequest) Kind() string    { return "get" }

func (*UnlockRequest) isRequest() {}
func (*LockRequest) isRequest()   {}
func (*SetRequest) isRequest()    {}
func (*GetRequest) isRequest()    {}

// Redacted versions keep secrets out of %v output.
func (r *UnlockRequest) String() string { return "Unlock{Password:<redacted>}" }
func (r *SetRequest) String() string    { return fmt.Sprintf("Set{Key:%q Value:<redacted>}", r.Key) }

// Response is either an OkResponse or an ErrorResponse.
type Response interface {
	isResponse()
}

// OkResponse reports success. Value is nil when there is nothing to return,
// including a Get on a missing or expired key.
type OkResponse struct {
	Value *string
}

// ErrorResponse reports a refused request. It implements error so client
// code can hand it back directly.
type ErrorResponse struct {
	Message string
}

func (*OkResponse) isResponse()    {}
func (*ErrorResponse) isResponse() {}

func (e *ErrorResponse) Error() string {
	return "server error: " + e.Message
}

// Ok builds an OkResponse without a value.
func Ok() *OkResponse {
	return &OkResponse{}
}

// OkValue builds an OkResponse carrying v.
func OkValue(v string) *OkResponse {
	return &OkResponse{Value: &v}
}

// Err builds an ErrorResponse.
func Err(msg string) *ErrorResponse {
	return &ErrorResponse{Message: msg}
}
