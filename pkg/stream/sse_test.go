package stream

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventReader_Next(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []message
	}{
		{
			name:  "single data line",
			input: "data: {\"state\":\"Error\"}\n\n",
			want:  []message{{Event: "message", Data: []byte(`{"state":"Error"}`)}},
		},
		{
			name:  "multi line data joined with newline",
			input: "data: first\ndata: second\n\n",
			want:  []message{{Event: "message", Data: []byte("first\nsecond")}},
		},
		{
			name:  "crlf terminators",
			input: "data: a\r\n\r\ndata: b\r\n\r\n",
			want: []message{
				{Event: "message", Data: []byte("a")},
				{Event: "message", Data: []byte("b")},
			},
		},
		{
			name:  "comments and blank events skipped",
			input: ": keep-alive\n\n\nevent: ping\n\ndata: x\n\n",
			want:  []message{{Event: "message", Data: []byte("x")}},
		},
		{
			name:  "named event and id",
			input: "id: 7\nevent: progress\ndata: y\n\n",
			want:  []message{{ID: "7", Event: "progress", Data: []byte("y")}},
		},
		{
			name:  "value without space after colon",
			input: "data:z\n\n",
			want:  []message{{Event: "message", Data: []byte("z")}},
		},
		{
			name:  "byte order mark",
			input: "\ufeffdata: bom\n\n",
			want:  []message{{Event: "message", Data: []byte("bom")}},
		},
		{
			name:  "unterminated event discarded",
			input: "data: done\n\ndata: partial\n",
			want:  []message{{Event: "message", Data: []byte("done")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			er := newEventReader(strings.NewReader(tt.input))
			var got []message
			for {
				msg, err := er.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				got = append(got, msg)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventReader_Retry(t *testing.T) {
	er := newEventReader(strings.NewReader("retry: 2500\ndata: a\n\nretry: soon\ndata: b\n\n"))

	_, err := er.Next()
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, er.retry)

	_, err = er.Next()
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, er.retry, "invalid retry values are ignored")
}

func TestEventReader_LastIDPersists(t *testing.T) {
	er := newEventReader(strings.NewReader("id: 1\ndata: a\n\ndata: b\n\n"))

	first, err := er.Next()
	require.NoError(t, err)
	second, err := er.Next()
	require.NoError(t, err)

	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "1", second.ID)
	assert.Equal(t, "1", er.lastID)
}

func TestEventReader_LargePayload(t *testing.T) {
	big := strings.Repeat("x", 256*1024)
	er := newEventReader(strings.NewReader("data: " + big + "\n\n"))

	msg, err := er.Next()
	require.NoError(t, err)
	assert.Len(t, msg.Data, len(big))
}
