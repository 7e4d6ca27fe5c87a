// Package mimeparse reads archived campaign messages back into their
// envelope fields and text/HTML bodies.
package mimeparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// Message is the readable view of one archived message.
type Message struct {
	MessageID string `json:"message_id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Date      string `json:"date,omitempty"`
	TextBody  string `json:"text_body,omitempty"`
	HTMLBody  string `json:"html_body,omitempty"`
}

var wordDecoder = &mime.WordDecoder{}

// Parse parses a raw RFC 5322 message. Encoded-word headers are decoded.
// Only the first text/plain and text/html parts are kept.
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mimeparse: failed to read message: %w", err)
	}

	parsed := &Message{
		MessageID: msg.Header.Get("Message-Id"),
		From:      decodeHeader(msg.Header.Get("From")),
		To:        decodeHeader(msg.Header.Get("To")),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		Date:      msg.Header.Get("Date"),
	}

	contentType := msg.Header.Get("Content-Type")
	transferEncoding := msg.Header.Get("Content-Transfer-Encoding")

	if contentType == "" {
		// No Content-Type header; treat as text/plain per RFC 2045.
		body, err := readBody(msg.Body, transferEncoding)
		if err != nil {
			return nil, fmt.Errorf("mimeparse: failed to read body: %w", err)
		}
		parsed.TextBody = string(body)
		return parsed, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("mimeparse: failed to parse Content-Type: %w", err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("mimeparse: multipart message missing boundary")
		}
		if err := walkMultipart(msg.Body, boundary, parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	}

	body, err := readBody(msg.Body, transferEncoding)
	if err != nil {
		return nil, fmt.Errorf("mimeparse: failed to read body: %w", err)
	}
	if mediaType == "text/html" {
		parsed.HTMLBody = string(body)
	} else {
		parsed.TextBody = string(body)
	}
	return parsed, nil
}

// walkMultipart recursively processes a multipart MIME body.
func walkMultipart(r io.Reader, boundary string, parsed *Message) error {
	mr := multipart.NewReader(r, boundary)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mimeparse: failed to read next part: %w", err)
		}

		mediaType := "text/plain"
		var params map[string]string
		if ct := part.Header.Get("Content-Type"); ct != "" {
			mediaType, params, err = mime.ParseMediaType(ct)
			if err != nil {
				continue
			}
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if nested := params["boundary"]; nested != "" {
				if err := walkMultipart(part, nested, parsed); err != nil {
					return err
				}
			}
			continue
		}

		if mediaType != "text/plain" && mediaType != "text/html" {
			continue
		}

		body, err := readBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return fmt.Errorf("mimeparse: failed to read part body: %w", err)
		}

		switch {
		case mediaType == "text/plain" && parsed.TextBody == "":
			parsed.TextBody = string(body)
		case mediaType == "text/html" && parsed.HTMLBody == "":
			parsed.HTMLBody = string(body)
		}
	}
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// readBody reads the full contents of r, decoding the Content-Transfer-Encoding
// (base64 or quoted-printable) when applicable.
func readBody(r io.Reader, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, r))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}
