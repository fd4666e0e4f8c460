// Package template renders personalised messages from a plain-text mail template.
//
// Placeholders have the form #name# and are replaced with the value of the
// row field called name. Placeholders without a matching field are left as
// they are. Fields are substituted one after another in header order, so a
// value that itself contains #other# is substituted again when the field
// "other" comes later in the row.
package template

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/pure-golang/mailmerge/mail"
	"github.com/pure-golang/mailmerge/rows"
)

var placeholderRe = regexp.MustCompile(`#([^#\s]+)#`)

// Error reports a template that does not render into a sendable message.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template: %s: %v", e.Reason, e.Err)
	}
	return "template: " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Template is an immutable list of lines, terminators included.
// The first lines are expected to be From, To and Subject headers,
// followed by a blank line and the body.
type Template struct {
	lines []string
}

// New creates a Template from lines. The slice is copied.
func New(lines []string) *Template {
	return &Template{lines: append([]string(nil), lines...)}
}

// Load reads a template as UTF-8. A byte order mark is honoured and dropped.
func Load(r io.Reader) (*Template, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())

	data, err := io.ReadAll(transform.NewReader(r, decoder))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read template")
	}

	lines := strings.SplitAfter(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	return &Template{lines: lines}, nil
}

// LoadFile is Load for a named file.
func LoadFile(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open template")
	}
	defer f.Close()

	return Load(f)
}

// Lines returns a copy of the template lines.
func (t *Template) Lines() []string {
	return append([]string(nil), t.lines...)
}

// Placeholders returns distinct placeholder names in order of first appearance.
func (t *Template) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, line := range t.lines {
		for _, m := range placeholderRe.FindAllStringSubmatch(line, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// Unmatched returns placeholders that none of the given field names fill.
func (t *Template) Unmatched(fields []string) []string {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f] = true
	}

	var missing []string
	for _, name := range t.Placeholders() {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Render substitutes row into every line and parses the result into a message.
// The message must carry a non-empty To header.
func (t *Template) Render(row rows.Row) (*mail.Message, error) {
	var sb strings.Builder
	for _, line := range t.lines {
		for _, f := range row {
			line = strings.ReplaceAll(line, "#"+f.Name+"#", f.Value)
		}
		sb.WriteString(line)
	}

	msg, err := mail.ParseMessage(strings.NewReader(sb.String()))
	if err != nil {
		return nil, &Error{Reason: "cannot split headers from body", Err: err}
	}

	if strings.TrimSpace(msg.To()) == "" {
		return nil, &Error{Reason: "missing To header"}
	}

	return msg, nil
}
