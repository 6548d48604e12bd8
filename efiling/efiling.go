// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package efiling holds the pure parts of e-filing: file numbers, template
// rendering and signature hashing.
package efiling

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

var codePattern = regexp.MustCompile(`^[A-Z][A-Z0-9-]{1,15}$`)

// NormalizeCode upper-cases a category or status code and checks its shape.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(code) {
		return "", errs.Invalid("code must be 2-16 letters, digits or dashes, starting with a letter")
	}
	return code, nil
}

// FileNumber formats the number of the seq'th file of a category in year.
func FileNumber(code string, year, seq int) string {
	return fmt.Sprintf("%s/%04d/%04d", code, year, seq)
}

// TemplateData is what file templates may refer to.
type TemplateData struct {
	FileNumber string
	Subject    string
	Category   string
	Sender     string
	Region     string
	Date       string
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// ParseTemplate compiles text, reporting syntax errors as invalid input.
func ParseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errs.Newf(errs.EInvalid, "invalid %s template: %v", name, err)
	}
	return t, nil
}

// Validate parses both parts of a template and executes them against
// sample data so references to unknown fields are caught on save.
func Validate(subject, body string) error {
	_, err := Render(subject, body, TemplateData{
		FileNumber: "CODE/2000/0001",
		Subject:    "Subject",
		Category:   "Category",
		Sender:     "Sender",
		Region:     "Region",
		Date:       "01 Jan 2000",
	})
	return err
}

// Render executes a template's subject and body with data.
func Render(subject, body string, data TemplateData) (models.RenderedTemplate, error) {
	var out models.RenderedTemplate
	for _, part := range []struct {
		name string
		text string
		dst  *string
	}{
		{"subject", subject, &out.Subject},
		{"body", body, &out.Body},
	} {
		t, err := ParseTemplate(part.name, part.text)
		if err != nil {
			return out, err
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return out, errs.Newf(errs.EInvalid, "cannot render %s template: %v", part.name, err)
		}
		*part.dst = buf.String()
	}
	out.Subject = strings.TrimSpace(out.Subject)
	return out, nil
}

// FormatDate is the date format templates receive.
func FormatDate(t time.Time) string {
	return t.UTC().Format("02 Jan 2006")
}

// ContentHash identifies the signed content of a file.
func ContentHash(f models.EFile) string {
	return auth.ContentHash(f.FileNumber, f.Subject, f.Body)
}

// SignedAt truncates a signing time to what every store round-trips.
func SignedAt(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Sign returns the signature of user over the file content identified by
// contentHash at signedAt.
func Sign(secret, fileID, userID, contentHash string, signedAt time.Time) string {
	return auth.Sign(secret, fileID, userID, contentHash, signedAt.UTC().Format(time.RFC3339))
}

// Check verifies sig against f's current content.
func Check(secret string, f models.EFile, sig models.EFileSignature) models.SignatureCheck {
	return models.SignatureCheck{
		SignatureID:    sig.ID,
		UserID:         sig.UserID,
		SignedAt:       sig.SignedAt,
		Valid:          auth.Verify(secret, sig.Signature, sig.FileID, sig.UserID, sig.ContentHash, sig.SignedAt.UTC().Format(time.RFC3339)),
		ContentChanged: sig.ContentHash != ContentHash(f),
	}
}
