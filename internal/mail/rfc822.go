package mail

import (
	"bytes"
	"fmt"
	"mime"
	netmail "net/mail"
	"strings"
)

// BuildRFC822 renders a plain-text UTF-8 message with encoded headers.
func BuildRFC822(from string, d Draft) ([]byte, error) {
	if strings.TrimSpace(d.To) == "" || strings.TrimSpace(d.Subject) == "" || strings.TrimSpace(d.Body) == "" {
		return nil, ErrInvalidDraft
	}

	to, err := formatAddresses(d.To)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}

	var buf bytes.Buffer
	if from != "" {
		addr, err := netmail.ParseAddress(from)
		if err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
		writeHeader(&buf, "From", addr.String())
	}
	writeHeader(&buf, "To", to)
	if strings.TrimSpace(d.Cc) != "" {
		cc, err := formatAddresses(d.Cc)
		if err != nil {
			return nil, fmt.Errorf("cc: %w", err)
		}
		writeHeader(&buf, "Cc", cc)
	}
	if strings.TrimSpace(d.Bcc) != "" {
		bcc, err := formatAddresses(d.Bcc)
		if err != nil {
			return nil, fmt.Errorf("bcc: %w", err)
		}
		writeHeader(&buf, "Bcc", bcc)
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", d.Subject))
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", `text/plain; charset="UTF-8"`)
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(strings.ReplaceAll(d.Body, "\r\n", "\n"), "\n", "\r\n"))
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

// formatAddresses accepts comma or semicolon separated recipients.
func formatAddresses(list string) (string, error) {
	list = strings.ReplaceAll(list, ";", ",")
	addrs, err := netmail.ParseAddressList(list)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", "), nil
}
