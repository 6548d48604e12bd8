// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: EInternal},
		{name: "coded", err: NotFound("file not found"), want: ENotFound},
		{name: "wrapped coded", err: Wrap(Conflict("taken"), "users.Create"), want: EConflict},
		{name: "fmt wrapped", err: fmt.Errorf("outer: %w", Invalid("bad")), want: EInvalid},
		{name: "wrapped plain", err: Wrap(errors.New("db down"), "users.Get"), want: EInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "title is required", ErrorMessage(Invalid("title is required")))
	assert.Equal(t, "title is required", ErrorMessage(Wrap(Invalid("title is required"), "op")))
	assert.Equal(t, "An internal error has occurred.", ErrorMessage(errors.New("secret detail")))
	assert.Equal(t, "", ErrorMessage(nil))
}

func TestErrorString(t *testing.T) {
	e := &Error{Code: EInternal, Msg: "insert failed", Err: errors.New("disk full")}
	assert.Equal(t, "insert failed: disk full", e.Error())
	assert.Equal(t, "<not found>", (&Error{Code: ENotFound}).Error())
	assert.Equal(t, "users.Get", ErrorOp(Wrap(errors.New("x"), "users.Get")))
}
