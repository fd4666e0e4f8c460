package mail

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// now is replaced in tests.
var now = time.Now

// Header is a single header field.
type Header struct {
	Key   string // canonical form, e.g. "Subject"
	Value string
}

// Message is a rendered plain-text message. The charset is always UTF-8.
type Message struct {
	Headers []Header
	Body    string
}

// ParseMessage splits raw message text into headers and body.
// Headers end at the first blank line; their order is preserved.
func ParseMessage(r io.Reader) (*Message, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read message")
	}

	parsed, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse message")
	}

	body, err := io.ReadAll(parsed.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read message body")
	}

	msg := &Message{Body: string(body)}
	for _, key := range headerOrder(raw) {
		for _, v := range parsed.Header[key] {
			msg.Headers = append(msg.Headers, Header{Key: key, Value: v})
		}
	}

	return msg, nil
}

// headerOrder returns canonical header keys in first-seen order.
func headerOrder(raw []byte) []string {
	var keys []string
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), len(raw)+1)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:i]))
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	return keys
}

// Get returns the first value for key, case-insensitively.
func (m *Message) Get(key string) string {
	key = textproto.CanonicalMIMEHeaderKey(key)
	for _, h := range m.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// Has reports whether a header with the given key is present.
func (m *Message) Has(key string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	for _, h := range m.Headers {
		if h.Key == key {
			return true
		}
	}
	return false
}

// To returns the raw To header value.
func (m *Message) To() string {
	return m.Get("To")
}

// Subject returns the Subject header value.
func (m *Message) Subject() string {
	return m.Get("Subject")
}

// Sender returns the envelope sender taken from the From header.
func (m *Message) Sender() (string, error) {
	from := m.Get("From")
	if from == "" {
		return "", errors.New("no from address specified")
	}
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return "", errors.Wrapf(err, "invalid from address %q", from)
	}
	return addr.Address, nil
}

// Recipients returns the envelope recipients from To, Cc and Bcc.
func (m *Message) Recipients() ([]string, error) {
	var result []string
	for _, key := range []string{"To", "Cc", "Bcc"} {
		for _, h := range m.Headers {
			if h.Key != key || strings.TrimSpace(h.Value) == "" {
				continue
			}
			list, err := netmail.ParseAddressList(h.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid %s address list %q", key, h.Value)
			}
			for _, addr := range list {
				result = append(result, addr.Address)
			}
		}
	}

	if len(result) == 0 {
		return nil, errors.New("no recipients specified")
	}
	return result, nil
}

var (
	addressHeaders = map[string]bool{
		"From": true, "To": true, "Cc": true, "Reply-To": true, "Sender": true,
	}
	// generated by Bytes
	mimeHeaders = map[string]bool{
		"Mime-Version": true, "Content-Type": true, "Content-Transfer-Encoding": true,
	}
)

// Bytes returns the wire form of the message: CRLF line endings, Bcc stripped,
// UTF-8 quoted-printable body, RFC 2047 encoded non-ASCII header values.
// Date and Message-ID are added when the template did not set them.
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer

	for _, h := range m.Headers {
		if h.Key == "Bcc" || mimeHeaders[h.Key] {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Key, encodeHeader(h.Key, h.Value))
	}

	if !m.Has("Date") {
		fmt.Fprintf(&buf, "Date: %s\r\n", now().Format(time.RFC1123Z))
	}
	if !m.Has("Message-Id") {
		fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.NewString(), m.domain())
	}

	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	// writes to a bytes.Buffer do not fail
	_, _ = qp.Write([]byte(m.Body))
	_ = qp.Close()

	return buf.Bytes()
}

func (m *Message) domain() string {
	from, err := m.Sender()
	if err != nil {
		return "localhost"
	}
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		return from[i+1:]
	}
	return "localhost"
}

func encodeHeader(key, value string) string {
	if isASCII(value) {
		return value
	}

	if addressHeaders[key] {
		if list, err := netmail.ParseAddressList(value); err == nil {
			formatted := make([]string, len(list))
			for i, addr := range list {
				formatted[i] = addr.String()
			}
			return strings.Join(formatted, ", ")
		}
	}

	return mime.QEncoding.Encode("utf-8", value)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
