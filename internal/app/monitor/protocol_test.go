package monitor

import (
	"testing"

	"github.com/dkeye/dialin/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want Line
	}{
		{
			name: "transcript",
			in:   "TRANSCRIPT_UPDATE:hello world",
			want: Line{Kind: LineTranscript, Raw: "TRANSCRIPT_UPDATE:hello world", Name: domain.TranscriptVar, Value: "hello world"},
		},
		{
			name: "transcript keeps later colons",
			in:   "TRANSCRIPT_UPDATE:agent: hi: there",
			want: Line{Kind: LineTranscript, Raw: "TRANSCRIPT_UPDATE:agent: hi: there", Name: domain.TranscriptVar, Value: "agent: hi: there"},
		},
		{
			name: "variable",
			in:   "VARIABLE_UPDATE:score:42",
			want: Line{Kind: LineVariable, Raw: "VARIABLE_UPDATE:score:42", Name: "score", Value: "42"},
		},
		{
			name: "variable value with colons",
			in:   "VARIABLE_UPDATE:time:12:30",
			want: Line{Kind: LineVariable, Raw: "VARIABLE_UPDATE:time:12:30", Name: "time", Value: "12:30"},
		},
		{
			name: "variable empty value",
			in:   "VARIABLE_UPDATE:flag:",
			want: Line{Kind: LineVariable, Raw: "VARIABLE_UPDATE:flag:", Name: "flag", Value: ""},
		},
		{
			name: "malformed variable",
			in:   "VARIABLE_UPDATE:malformed",
			want: Line{Kind: LineRaw, Raw: "VARIABLE_UPDATE:malformed"},
		},
		{
			name: "plain",
			in:   "bot joined room",
			want: Line{Kind: LineRaw, Raw: "bot joined room"},
		},
		{
			name: "prefix not at start",
			in:   "log TRANSCRIPT_UPDATE:x",
			want: Line{Kind: LineRaw, Raw: "log TRANSCRIPT_UPDATE:x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLine(tt.in))
		})
	}
}

func TestLineQueueLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"Transcript updated: hello world", "TRANSCRIPT_UPDATE:hello world"},
		ParseLine("TRANSCRIPT_UPDATE:hello world").QueueLines())
	assert.Equal(t,
		[]string{"VARIABLE_UPDATE:score:42"},
		ParseLine("VARIABLE_UPDATE:score:42").QueueLines())
}
