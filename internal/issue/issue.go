// Package issue turns a classified event into a tracker issue draft.
package issue

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/rpggio/qasync/internal/classify"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/source"
)

// None fills sections with no content.
const None = "none"

// Draft is an issue ready to be filed.
type Draft struct {
	Title    string
	Body     string
	Category record.Category
	Labels   []string
}

// Label returns the tracker label name for a category.
func Label(c record.Category) string {
	switch c {
	case record.CategoryBug:
		return "Bug"
	case record.CategoryDataError:
		return "Data Error"
	case record.CategoryImprovement:
		return "Improvement"
	}
	return string(c)
}

// NewDraft builds the draft for ev filed under category.
func NewDraft(ev source.Event, category record.Category, titleMax int) Draft {
	title := classify.Title(ev.Text, titleMax)
	if title == "" {
		title = "(no text)"
	}
	return Draft{
		Title:    title,
		Body:     Body(ev),
		Category: category,
		Labels:   []string{Label(category)},
	}
}

// Body renders the fixed issue body. Sections always appear in the same
// order, separated by a blank line, and the body ends with one newline.
func Body(ev source.Event) string {
	sections := []struct {
		heading string
		content string
	}{
		{"Reporter", reporter(ev.Author)},
		{"Symptom", symptom(ev.Text)},
		{"Screenshot", attachments(ev.Attachments)},
		{"Original", quote(ev.Text)},
		{"Source Link", orNone(strings.TrimSpace(ev.Permalink))},
	}

	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = "## " + s.heading + "\n" + s.content + "\n"
	}
	return strings.Join(parts, "\n")
}

// Comment renders the note added to an existing issue when an event is
// merged into it.
func Comment(ev source.Event) string {
	return "Another report of this issue.\n\n" + Body(ev)
}

func reporter(a source.Author) string {
	name := strings.TrimSpace(a.DisplayName)
	handle := strings.TrimPrefix(strings.TrimSpace(a.Handle), "@")
	switch {
	case name != "" && handle != "":
		return name + " (@" + handle + ")"
	case name != "":
		return name
	case handle != "":
		return "@" + handle
	}
	return None
}

func symptom(text string) string {
	return orNone(strings.Join(strings.Fields(norm.NFC.String(text)), " "))
}

func attachments(refs []string) string {
	var lines []string
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			lines = append(lines, "- "+r)
		}
	}
	if len(lines) == 0 {
		return None
	}
	return strings.Join(lines, "\n")
}

func quote(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return None
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + l
		}
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return None
	}
	return s
}
