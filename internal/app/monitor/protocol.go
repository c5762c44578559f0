package monitor

import (
	"strings"

	"github.com/dkeye/dialin/internal/domain"
)

const (
	TranscriptPrefix = "TRANSCRIPT_UPDATE:"
	VariablePrefix   = "VARIABLE_UPDATE:"

	stderrPrefix       = "ERROR: "
	transcriptNotice   = "Transcript updated: "
	variableSegmentCnt = 3
)

type LineKind int

const (
	LineRaw LineKind = iota
	LineTranscript
	LineVariable
)

// Line is one classified line of worker stdout.
type Line struct {
	Kind  LineKind
	Raw   string
	Name  string
	Value string
}

// ParseLine classifies a trimmed stdout line. Malformed variable updates
// come back as LineRaw so they are forwarded but never applied.
func ParseLine(raw string) Line {
	switch {
	case strings.HasPrefix(raw, TranscriptPrefix):
		_, text, _ := strings.Cut(raw, ":")
		return Line{Kind: LineTranscript, Raw: raw, Name: domain.TranscriptVar, Value: text}
	case strings.HasPrefix(raw, VariablePrefix):
		parts := strings.SplitN(raw, ":", variableSegmentCnt)
		if len(parts) != variableSegmentCnt {
			return Line{Kind: LineRaw, Raw: raw}
		}
		return Line{Kind: LineVariable, Raw: raw, Name: parts[1], Value: parts[2]}
	default:
		return Line{Kind: LineRaw, Raw: raw}
	}
}

// QueueLines returns what gets pushed for the line, in order.
func (l Line) QueueLines() []string {
	if l.Kind == LineTranscript {
		return []string{transcriptNotice + l.Value, l.Raw}
	}
	return []string{l.Raw}
}
