package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailmerge/rows"
)

var scenarioA = []string{
	"From: a@x.com\n",
	"To: #email#\n",
	"Subject: Hi #name#\n",
	"\n",
	"Hello #name#!\n",
}

func bob() rows.Row {
	return rows.Row{{Name: "email", Value: "b@y.com"}, {Name: "name", Value: "Bob"}}
}

func TestRender_ScenarioA(t *testing.T) {
	msg, err := New(scenarioA).Render(bob())
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", msg.Get("From"))
	assert.Equal(t, "b@y.com", msg.To())
	assert.Equal(t, "Hi Bob", msg.Subject())
	assert.Equal(t, "Hello Bob!\n", msg.Body)
}

func TestRender_UnresolvedPlaceholderStays(t *testing.T) {
	tpl := New([]string{
		"From: a@x.com\n",
		"To: #email#\n",
		"Subject: #greeting# #name#\n",
		"\n",
		"Your code is #code#, #name#.\n",
	})

	msg, err := tpl.Render(bob())
	require.NoError(t, err)

	assert.Equal(t, "#greeting# Bob", msg.Subject())
	assert.Equal(t, "Your code is #code#, Bob.\n", msg.Body)
}

func TestRender_EveryOccurrenceReplaced(t *testing.T) {
	tpl := New([]string{"From: a@x.com\n", "To: #email#\n", "Subject: x\n", "\n", "#name##name# #name#\n"})

	msg, err := tpl.Render(bob())
	require.NoError(t, err)
	assert.Equal(t, "BobBob Bob\n", msg.Body)
}

func TestRender_Deterministic(t *testing.T) {
	tpl := New(scenarioA)
	row := bob()

	first, err := tpl.Render(row)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := tpl.Render(row)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRender_SubstitutionFollowsFieldOrder(t *testing.T) {
	tpl := New([]string{"From: a@x.com\n", "To: #email#\n", "Subject: x\n", "\n", "#first#\n"})

	// a value mentioning a later field's token is substituted again
	row := rows.Row{
		{Name: "email", Value: "b@y.com"},
		{Name: "first", Value: "#last#"},
		{Name: "last", Value: "Smith"},
	}
	msg, err := tpl.Render(row)
	require.NoError(t, err)
	assert.Equal(t, "Smith\n", msg.Body)

	// but not one for an earlier field
	row = rows.Row{
		{Name: "email", Value: "b@y.com"},
		{Name: "last", Value: "Smith"},
		{Name: "first", Value: "#last#"},
	}
	msg, err = tpl.Render(row)
	require.NoError(t, err)
	assert.Equal(t, "#last#\n", msg.Body)
}

func TestRender_ExtraHeadersKept(t *testing.T) {
	tpl := New([]string{
		"From: a@x.com\n",
		"To: #email#\n",
		"Subject: x\n",
		"Reply-To: support@x.com\n",
		"\n",
		"body\n",
	})

	msg, err := tpl.Render(bob())
	require.NoError(t, err)
	assert.Equal(t, "support@x.com", msg.Get("Reply-To"))
}

func TestRender_MissingTo(t *testing.T) {
	tpl := New([]string{"From: a@x.com\n", "Subject: x\n", "\n", "body\n"})

	_, err := tpl.Render(bob())

	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "template: missing To header", tErr.Error())
}

func TestRender_EmptyTo(t *testing.T) {
	tpl := New(scenarioA)

	_, err := tpl.Render(rows.Row{{Name: "email", Value: ""}, {Name: "name", Value: "Bob"}})

	var tErr *Error
	require.ErrorAs(t, err, &tErr)
}

func TestRender_Unparseable(t *testing.T) {
	tpl := New([]string{"Dear #name#,\n", "\n", "body\n"})

	_, err := tpl.Render(bob())

	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, tErr.Error(), "cannot split headers from body")
}

func TestLoad_ByteOrderMark(t *testing.T) {
	tpl, err := Load(strings.NewReader("\ufeffFrom: a@x.com\r\nTo: #email#\r\nSubject: Hi\r\n\r\nHello\r\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"From: a@x.com\r\n",
		"To: #email#\r\n",
		"Subject: Hi\r\n",
		"\r\n",
		"Hello\r\n",
	}, tpl.Lines())

	msg, err := tpl.Render(bob())
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", msg.Get("From"))
	assert.Equal(t, "Hello\r\n", msg.Body)
}

func TestLoad_NoTrailingNewline(t *testing.T) {
	tpl, err := Load(strings.NewReader("From: a@x.com\nTo: b@y.com\nSubject: Hi\n\nBye"))
	require.NoError(t, err)

	lines := tpl.Lines()
	require.Len(t, lines, 5)
	assert.Equal(t, "Bye", lines[4])
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letter.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(scenarioA, "")), 0o600))

	tpl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, scenarioA, tpl.Lines())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNew_CopiesLines(t *testing.T) {
	lines := append([]string(nil), scenarioA...)
	tpl := New(lines)
	lines[1] = "To: nobody\n"

	assert.Equal(t, scenarioA, tpl.Lines())
}

func TestPlaceholders(t *testing.T) {
	tpl := New(append(scenarioA, "Ref #code# for #email#\n"))

	assert.Equal(t, []string{"email", "name", "code"}, tpl.Placeholders())
	assert.Equal(t, []string{"code"}, tpl.Unmatched([]string{"email", "name"}))
	assert.Empty(t, tpl.Unmatched([]string{"email", "name", "code"}))
}
