// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRequestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		req  Request
	}{
		{"unlock", &UnlockRequest{Password: "hunter2"}},
		{"unlock-empty", &UnlockRequest{}},
		{"lock", &LockRequest{}},
		{"set", &SetRequest{Key: "db", Value: "pw1"}},
		{"set-empty-value", &SetRequest{Key: "db", Value: ""}},
		{"set-unicode", &SetRequest{Key: "clé", Value: "pässwörd ✓"}},
		{"set-large", &SetRequest{Key: "blob", Value: strings.Repeat("x", 70000)}},
		{"get", &GetRequest{Key: "db"}},
		{"get-empty-key", &GetRequest{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := EncodeRequest(tc.req)
			require.NoError(t, err)

			again, err := EncodeRequest(tc.req)
			require.NoError(t, err)
			require.Equal(t, b, again, "encoding must be deterministic")

			got, err := DecodeRequest(b)
			require.NoError(t, err)
			require.Equal(t, tc.req, got)
			require.Equal(t, tc.req.Kind(), got.Kind())
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		resp Response
	}{
		{"ok-absent", Ok()},
		{"ok-value", OkValue("pw1")},
		{"ok-empty-value", OkValue("")},
		{"error", Err(MsgUnauthorized)},
		{"error-empty", Err("")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := EncodeResponse(tc.resp)
			require.NoError(t, err)

			got, err := DecodeResponse(b)
			require.NoError(t, err)
			require.Equal(t, tc.resp, got)
		})
	}
}

func TestOkEmptyValueIsNotAbsent(t *testing.T) {
	absent, err := EncodeResponse(Ok())
	require.NoError(t, err)
	empty, err := EncodeResponse(OkValue(""))
	require.NoError(t, err)
	require.NotEqual(t, absent, empty)

	got, err := DecodeResponse(empty)
	require.NoError(t, err)
	ok, isOk := got.(*OkResponse)
	require.True(t, isOk)
	require.NotNil(t, ok.Value)
	require.Empty(t, *ok.Value)
}

func TestDecodeRequestMalformed(t *testing.T) {
	valid, err := EncodeRequest(&SetRequest{Key: "db", Value: "pw1"})
	require.NoError(t, err)

	inner := func(fields ...[]byte) []byte {
		var b []byte
		for _, f := range fields {
			b = append(b, f...)
		}
		return b
	}
	str := func(num protowire.Number, s string) []byte {
		return appendString(nil, num, s)
	}

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a request at all")},
		{"truncated", valid[:len(valid)-2]},
		{"trailing-bytes", append(append([]byte{}, valid...), 0x00)},
		{"two-variants", append(appendMessage(nil, fieldLock, nil), appendMessage(nil, fieldLock, nil)...)},
		{"unknown-variant", appendMessage(nil, 9, nil)},
		{"varint-variant", protowire.AppendVarint(protowire.AppendTag(nil, fieldLock, protowire.VarintType), 1)},
		{"set-missing-value", appendMessage(nil, fieldSet, str(1, "db"))},
		{"get-missing-key", appendMessage(nil, fieldGet, nil)},
		{"unlock-duplicate", appendMessage(nil, fieldUnlock, inner(str(1, "a"), str(1, "b")))},
		{"get-unknown-field", appendMessage(nil, fieldGet, inner(str(1, "db"), str(7, "x")))},
		{"lock-with-field", appendMessage(nil, fieldLock, str(1, "x"))},
		{"inner-varint", appendMessage(nil, fieldGet, protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 3))},
		{"inner-truncated", appendMessage(nil, fieldGet, str(1, "db")[:3])},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRequest(tc.data)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xff, 0xff, 0xff}},
		{"unknown-variant", appendMessage(nil, 3, nil)},
		{"error-missing-message", appendMessage(nil, fieldError, nil)},
		{"ok-wrong-field", appendMessage(nil, fieldOk, appendString(nil, 2, "x"))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeResponse(tc.data)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeRejectsOversize(t *testing.T) {
	b := make([]byte, MaxMessageSize+1)
	_, err := DecodeRequest(b)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestLargestValueFits(t *testing.T) {
	req := &SetRequest{
		Key:   strings.Repeat("k", 60<<10),
		Value: strings.Repeat("v", MaxValueSize),
	}
	b, err := EncodeRequest(req)
	require.NoError(t, err)
	require.LessOrEqual(t, len(b), MaxMessageSize)

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestRedactedStrings(t *testing.T) {
	require.NotContains(t, (&UnlockRequest{Password: "hunter2"}).String(), "hunter2")
	s := (&SetRequest{Key: "db", Value: "pw1"}).String()
	require.Contains(t, s, "db")
	require.NotContains(t, s, "pw1")
}

func TestErrorResponseIsError(t *testing.T) {
	var err error = Err(MsgUnauthorized)
	require.Contains(t, err.Error(), MsgUnauthorized)
}
