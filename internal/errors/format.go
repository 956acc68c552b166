package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// tone is an SGR parameter list.
type tone string

const (
	toneError tone = "1;31"
	toneTitle tone = "1"
	toneLabel tone = "36"
	toneMuted tone = "90"
)

var plain atomic.Bool

// DisableColors turns off ANSI escapes in Format and PrintError.
func DisableColors() { plain.Store(true) }

// EnableColors turns ANSI escapes back on.
func EnableColors() { plain.Store(false) }

func (t tone) paint(s string) string {
	if plain.Load() || s == "" {
		return s
	}
	return "\x1b[" + string(t) + "m" + s + "\x1b[0m"
}

// detailWidth is the wrap column for the detail text, excluding the label.
const detailWidth = 64

// Format renders the error as a headline followed by labelled rows:
//
//	error[P004] protocol: Unknown packet
//	  cause  protocol: packet "jump" not registered
//	  detail No packet is registered under this id.
//	  hint   Run `pipwire schema` to list the packet ids.
func (e *PipError) Format() string {
	var b strings.Builder
	b.WriteString(e.headline())
	b.WriteByte('\n')

	if e.Wrapped != nil {
		writeRow(&b, "cause", toneMuted.paint(e.Wrapped.Error()))
	}
	for i, line := range wrapText(e.Detail, detailWidth) {
		label := ""
		if i == 0 {
			label = "detail"
		}
		writeRow(&b, label, line)
	}
	if e.Suggestion != "" {
		writeRow(&b, "hint", e.Suggestion)
	}
	return b.String()
}

func (e *PipError) headline() string {
	head := "error"
	if e.Code != "" {
		head += "[" + e.Code + "]"
	}
	s := toneError.paint(head)
	if e.Category != "" {
		s += " " + toneMuted.paint(string(e.Category))
	}
	return s + ": " + toneTitle.paint(e.Message)
}

func writeRow(b *strings.Builder, label, text string) {
	b.WriteString("  ")
	b.WriteString(toneLabel.paint(fmt.Sprintf("%-6s", label)))
	b.WriteByte(' ')
	b.WriteString(text)
	b.WriteByte('\n')
}

// FormatCompact returns the single-line form used in logs.
func (e *PipError) FormatCompact() string {
	return e.Error()
}

type jsonError struct {
	Code       string   `json:"code,omitempty"`
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	Cause      string   `json:"cause,omitempty"`
	Detail     string   `json:"detail,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// FormatJSON returns the error as a JSON object for --json output.
func (e *PipError) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// wrapText splits text into lines of at most width bytes, breaking on
// whitespace. A single word longer than width gets a line of its own.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := []string{words[0]}
	for _, w := range words[1:] {
		last := &lines[len(lines)-1]
		if len(*last)+1+len(w) > width {
			lines = append(lines, w)
			continue
		}
		*last += " " + w
	}
	return lines
}

// PrintError writes err to w, using Format for a *PipError.
func PrintError(w io.Writer, err error) {
	if pe, ok := err.(*PipError); ok {
		fmt.Fprint(w, pe.Format())
		return
	}
	fmt.Fprintf(w, "%s: %s\n", toneError.paint("error"), err.Error())
}
