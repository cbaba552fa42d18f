package email

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Validation(t *testing.T) {
	_, err := NewSender(Config{Enabled: true})
	assert.Error(t, err)

	_, err = NewSender(Config{Enabled: true, SMTPHost: "smtp.example.com"})
	assert.Error(t, err)

	s, err := NewSender(Config{Enabled: true, SMTPHost: "smtp.example.com", FromAddress: "reports@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, s.config.SMTPPort)
}

func TestSend_DisabledSenderIsNoop(t *testing.T) {
	s, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	messageID, err := s.Send(context.Background(), Message{To: "owner@example.com", Subject: "s", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Empty(t, messageID)
}

func TestBuildMessage_HTMLOnly(t *testing.T) {
	s, err := NewSender(Config{SMTPHost: "smtp.example.com", FromAddress: "Field Reports <reports@example.com>"})
	require.NoError(t, err)

	msg := s.buildMessage("<id-1@fieldreport>", Message{
		To:      "owner@example.com",
		Subject: "Field update report - Mooivlei",
		HTML:    "<p>hello</p>",
	})
	text := string(msg)

	assert.Contains(t, text, "From: Field Reports <reports@example.com>\r\n")
	assert.Contains(t, text, "To: owner@example.com\r\n")
	assert.Contains(t, text, "Subject: Field update report - Mooivlei\r\n")
	assert.Contains(t, text, "Message-ID: <id-1@fieldreport>\r\n")
	assert.Contains(t, text, "Content-Type: text/html; charset=\"utf-8\"\r\n")
	assert.True(t, strings.HasSuffix(text, "\r\n<p>hello</p>"))
	assert.NotContains(t, text, "multipart/mixed")
}

func TestBuildMessage_WithAttachment(t *testing.T) {
	s, err := NewSender(Config{SMTPHost: "smtp.example.com", FromAddress: "reports@example.com"})
	require.NoError(t, err)

	msg := s.buildMessage("<id-2@fieldreport>", Message{
		To:      "owner@example.com",
		Subject: "report",
		HTML:    "<p>body</p>",
		Attachments: []Attachment{
			{Filename: "field.csv", ContentType: "text/csv", Data: []byte("a,b\n1,2\n")},
		},
	})
	text := string(msg)

	assert.Contains(t, text, "multipart/mixed")
	assert.Contains(t, text, "Content-Disposition: attachment; filename=\"field.csv\"")
	assert.Contains(t, text, "Content-Transfer-Encoding: base64")
	assert.Contains(t, text, "<p>body</p>")
}

func TestWrapBase64(t *testing.T) {
	encoded := strings.Repeat("A", 200)
	wrapped := wrapBase64(encoded)

	for _, line := range strings.Split(wrapped, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
	assert.Equal(t, encoded, strings.ReplaceAll(wrapped, "\r\n", ""))
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "reports@example.com", extractEmail("Field Reports <reports@example.com>"))
	assert.Equal(t, "reports@example.com", extractEmail("reports@example.com"))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("421 service not available")))
	assert.True(t, IsRetryable(errors.New("451 local error in processing")))
	assert.True(t, IsRetryable(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.False(t, IsRetryable(errors.New("550 no such user")))
}

func TestIsConnectionFault(t *testing.T) {
	assert.False(t, IsConnectionFault(nil))
	assert.True(t, IsConnectionFault(&net.OpError{Op: "write", Err: errors.New("broken pipe")}))
	assert.True(t, IsConnectionFault(errors.New("write tcp: connection reset by peer")))
	assert.True(t, IsConnectionFault(errors.New("unexpected EOF")))
	assert.False(t, IsConnectionFault(errors.New("550 no such user")))
}
