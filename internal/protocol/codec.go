// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for any byte sequence that is not exactly one
// well formed message of the vocabulary.
var ErrMalformed = errors.New("malformed message")

// The wire format is protobuf: the outer message holds exactly one
// length-delimited field whose number selects the variant, and whose payload
// is the variant's own message. Every string field is always written, so the
// decoder can insist on it.
//
//	Request  { 1: Unlock{1: password}  2: Lock{}  3: Set{1: key, 2: value}  4: Get{1: key} }
//	Response { 1: Ok{1: value (optional)}  2: Error{1: message} }
const (
	fieldUnlock protowire.Number = 1
	fieldLock   protowire.Number = 2
	fieldSet    protowire.Number = 3
	fieldGet    protowire.Number = 4

	fieldOk    protowire.Number = 1
	fieldError protowire.Number = 2
)

// EncodeRequest serializes a request.
func EncodeRequest(req Request) ([]byte, error) {
	var (
		num   protowire.Number
		inner []byte
	)

	switch r := req.(type) {
	case *UnlockRequest:
		num = fieldUnlock
		inner = appendString(nil, 1, r.Password)
	case *LockRequest:
		num = fieldLock
	case *SetRequest:
		num = fieldSet
		inner = appendString(nil, 1, r.Key)
		inner = appendString(inner, 2, r.Value)
	case *GetRequest:
		num = fieldGet
		inner = appendString(nil, 1, r.Key)
	default:
		return nil, fmt.Errorf("unknown request type %T", req)
	}

	return appendMessage(nil, num, inner), nil
}

// DecodeRequest parses exactly one request from b.
func DecodeRequest(b []byte) (Request, error) {
	num, inner, err := consumeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch num {
	case fieldUnlock:
		f, err := consumeStrings(inner, 1)
		if err != nil {
			return nil, fmt.Errorf("unlock: %w", err)
		}
		return &UnlockRequest{Password: f[1]}, nil
	case fieldLock:
		if _, err := consumeStrings(inner); err != nil {
			return nil, fmt.Errorf("lock: %w", err)
		}
		return &LockRequest{}, nil
	case fieldSet:
		f, err := consumeStrings(inner, 1, 2)
		if err != nil {
			return nil, fmt.Errorf("set: %w", err)
		}
		return &SetRequest{Key: f[1], Value: f[2]}, nil
	case fieldGet:
		f, err := consumeStrings(inner, 1)
		if err != nil {
			return nil, fmt.Errorf("get: %w", err)
		}
		return &GetRequest{Key: f[1]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown request variant %d", ErrMalformed, num)
	}
}

// EncodeResponse serializes a response.
func EncodeResponse(resp Response) ([]byte, error) {
	switch r := resp.(type) {
	case *OkResponse:
		var inner []byte
		if r.Value != nil {
			inner = appendString(nil, 1, *r.Value)
		}
		return appendMessage(nil, fieldOk, inner), nil
	case *ErrorResponse:
		return appendMessage(nil, fieldError, appendString(nil, 1, r.Message)), nil
	default:
		return nil, fmt.Errorf("unknown response type %T", resp)
	}
}

// DecodeResponse parses exactly one response from b.
func DecodeResponse(b []byte) (Response, error) {
	num, inner, err := consumeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch num {
	case fieldOk:
		f, err := consumeOptionalString(inner, 1)
		if err != nil {
			return nil, fmt.Errorf("ok: %w", err)
		}
		return &OkResponse{Value: f}, nil
	case fieldError:
		f, err := consumeStrings(inner, 1)
		if err != nil {
			return nil, fmt.Errorf("error: %w", err)
		}
		return &ErrorResponse{Message: f[1]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown response variant %d", ErrMalformed, num)
	}
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// consumeEnvelope reads the single outer field and returns its number and
// payload. Trailing bytes or a second field are rejected.
func consumeEnvelope(b []byte) (protowire.Number, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	if len(b) > MaxMessageSize {
		return 0, nil, fmt.Errorf("%w: message exceeds %d bytes", ErrMalformed, MaxMessageSize)
	}

	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
	}
	if typ != protowire.BytesType {
		return 0, nil, fmt.Errorf("%w: variant %d has wire type %d", ErrMalformed, num, typ)
	}
	b = b[n:]

	inner, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
	}
	if len(b[n:]) != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b[n:]))
	}
	return num, inner, nil
}

// consumeStrings decodes a message made only of the wanted string fields,
// each present exactly once.
func consumeStrings(b []byte, want ...protowire.Number) (map[protowire.Number]string, error) {
	fields := make(map[protowire.Number]string, len(want))
	allowed := make(map[protowire.Number]bool, len(want))
	for _, w := range want {
		allowed[w] = true
	}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		if !allowed[num] {
			return nil, fmt.Errorf("%w: unexpected field %d", ErrMalformed, num)
		}
		if typ != protowire.BytesType {
			return nil, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
		}
		if _, dup := fields[num]; dup {
			return nil, fmt.Errorf("%w: duplicate field %d", ErrMalformed, num)
		}
		b = b[n:]

		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		fields[num] = v
		b = b[n:]
	}

	for _, w := range want {
		if _, ok := fields[w]; !ok {
			return nil, fmt.Errorf("%w: missing field %d", ErrMalformed, w)
		}
	}
	return fields, nil
}

// consumeOptionalString decodes a message holding at most one string field.
func consumeOptionalString(b []byte, num protowire.Number) (*string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	f, err := consumeStrings(b, num)
	if err != nil {
		return nil, err
	}
	v := f[num]
	return &v, nil
}
