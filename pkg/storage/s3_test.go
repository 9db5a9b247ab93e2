package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocumentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		ext         string
		ct          string
		ok          bool
	}{
		{"pdf", "application/pdf", "minutes.pdf", ".pdf", "application/pdf", true},
		{"upper-case extension", "", "PLAN.PDF", ".pdf", "application/pdf", true},
		{"jpeg normalized", "image/jpeg", "photo.jpeg", ".jpg", "image/jpeg", true},
		{"browser image/jpg", "image/jpg", "photo.jpg", ".jpg", "image/jpeg", true},
		{"octet-stream trusted by extension", "application/octet-stream", "budget.xlsx", ".xlsx", AllowedDocumentExtensions[".xlsx"], true},
		{"csv with charset", "text/csv; charset=utf-8", "owners.csv", ".csv", "text/csv", true},
		{"executable", "application/x-msdownload", "setup.exe", "", "", false},
		{"no extension", "application/pdf", "minutes", "", "", false},
		{"mismatched type", "application/zip", "minutes.pdf", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ct, ok := ValidateDocumentType(tt.contentType, tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ext, ext)
			assert.Equal(t, tt.ct, ct)
		})
	}
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "documents/org/scheme/doc.pdf", DocumentKey("org", "scheme", "doc", ".pdf"))
}

func TestPresignDownload_CustomEndpoint(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Region:               "ap-southeast-2",
		AccessKeyID:          "test",
		SecretAccessKey:      "test",
		Endpoint:             "http://localhost:9000",
		Bucket:               "stratum-documents",
		PresignExpireMinutes: 5,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.PresignExpire())

	url, expires, err := s.PresignDownload(context.Background(), "documents/o/s/d.pdf", "AGM minutes.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:9000/stratum-documents/documents/o/s/d.pdf?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "response-content-disposition=")
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, time.Minute)
}
