// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package efiling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"works", "WORKS", false},
		{" Pw-2 ", "PW-2", false},
		{"A", "", true},
		{"2PW", "", true},
		{"PW/2", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errs.EInvalid, errs.ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileNumber(t *testing.T) {
	assert.Equal(t, "PW/2025/0001", FileNumber("PW", 2025, 1))
	assert.Equal(t, "PW/2025/12345", FileNumber("PW", 2025, 12345))
}

func TestRender(t *testing.T) {
	data := TemplateData{
		FileNumber: "PW/2025/0007",
		Subject:    "Road repair",
		Category:   "Public Works",
		Sender:     "Asha",
		Region:     "Ward 4",
		Date:       FormatDate(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)),
	}

	out, err := Render("  {{upper .Category}}: {{.Subject}} ", "File {{.FileNumber}} from {{.Sender}} ({{.Region}}) on {{.Date}}", data)
	require.NoError(t, err)
	assert.Equal(t, "PUBLIC WORKS: Road repair", out.Subject)
	assert.Equal(t, "File PW/2025/0007 from Asha (Ward 4) on 09 Mar 2025", out.Body)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("{{.Subject}}", "Dear {{.Sender}}"))

	err := Validate("{{.Subject", "")
	require.Error(t, err)
	assert.Equal(t, errs.EInvalid, errs.ErrorCode(err))

	err = Validate("{{.Subject}}", "{{.Budget}}")
	require.Error(t, err)
	assert.Equal(t, errs.EInvalid, errs.ErrorCode(err))
}

func TestSignAndCheck(t *testing.T) {
	const secret = "signing-secret-0123456789"
	f := models.EFile{ID: "file-1", FileNumber: "PW/2025/0001", Subject: "Subject", Body: "Body"}
	signedAt := SignedAt(time.Date(2025, 1, 2, 3, 4, 5, 678, time.UTC))
	assert.Equal(t, 0, signedAt.Nanosecond())

	hash := ContentHash(f)
	sig := models.EFileSignature{
		ID:          "sig-1",
		FileID:      f.ID,
		UserID:      "user-1",
		ContentHash: hash,
		Signature:   Sign(secret, f.ID, "user-1", hash, signedAt),
		SignedAt:    signedAt,
	}

	check := Check(secret, f, sig)
	assert.True(t, check.Valid)
	assert.False(t, check.ContentChanged)

	f.Body = "Edited body"
	check = Check(secret, f, sig)
	assert.True(t, check.Valid, "signature still matches what was signed")
	assert.True(t, check.ContentChanged)

	sig.UserID = "user-2"
	assert.False(t, Check(secret, f, sig).Valid)

	sig.UserID = "user-1"
	assert.False(t, Check("another-secret-0123456789", f, sig).Valid)
}
