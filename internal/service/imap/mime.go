package imap

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// parsedMessage is the subset of an RFC822 message the ingester persists.
type parsedMessage struct {
	Subject string
	From    string
	To      string
	HTML    string
}

// parseMessage decodes raw as an RFC822 message and recursively walks its
// MIME structure for the first text/html part, mirroring
// util::traverse_mail's depth-first search.
func parseMessage(raw []byte) (*parsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		subject = msg.Header.Get("Subject")
	}

	html, err := findHTMLPart(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, err
	}

	return &parsedMessage{
		Subject: subject,
		From:    msg.Header.Get("From"),
		To:      msg.Header.Get("To"),
		HTML:    html,
	}, nil
}

func findHTMLPart(contentType, transferEncoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
		params = nil
	}
	return walkPart(mediaType, params, transferEncoding, body)
}

func walkPart(mediaType string, params map[string]string, transferEncoding string, body io.Reader) (string, error) {
	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return "", nil
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", err
			}

			partMediaType, partParams, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if err != nil {
				partMediaType = "text/plain"
				partParams = nil
			}

			html, err := walkPart(partMediaType, partParams, part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if html != "" {
				return html, nil
			}
		}
	}

	if mediaType != "text/html" {
		return "", nil
	}

	decoded, err := decodeTransferEncoding(transferEncoding, body)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTransferEncoding(encoding string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r), nil
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r), nil
	default:
		return r, nil
	}
}
