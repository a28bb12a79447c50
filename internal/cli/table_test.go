package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"listenlist/internal/share"
	"listenlist/internal/thread"
)

func TestWriteTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	err := writeTable(&buf, []string{"NAME", "AGE"}, [][]string{
		{"ana", "31"},
		{"bartholomew", "7"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, strings.Index(lines[1], "31"), strings.Index(lines[2], "7"))
}

func TestWriteTableEmptyIsNoop(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, nil, nil))
	require.Empty(t, buf.String())
}

func TestRenderThreadsListsPartners(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	threads := []*thread.Thread{
		{
			Partner:            share.UserRef{ID: 2, Username: "bruno"},
			LastMessageAt:      now.Add(-5 * time.Minute),
			LastMessagePreview: "see you there",
			HasUnread:          true,
		},
		{
			Partner:            share.UserRef{ID: 3, Username: "carla", FirstName: "Carla"},
			LastMessageAt:      now.Add(-2 * time.Hour),
			LastMessagePreview: "Shared (song)",
		},
	}

	var buf bytes.Buffer
	renderThreads(&buf, threads, now)
	out := buf.String()

	require.Contains(t, out, "bruno")
	require.Contains(t, out, "● bruno")
	require.Contains(t, out, "Carla")
	require.Contains(t, out, "5m ago")
	require.Contains(t, out, "see you there")
}

func TestRenderThreadsEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderThreads(&buf, nil, time.Now())
	require.Contains(t, buf.String(), "No conversations yet.")
}

func TestRenderConversationMarksUnread(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	th := &thread.Thread{
		Partner: share.UserRef{ID: 2, Username: "bruno"},
		Messages: []share.Message{
			{ID: "s1", Text: "hola", CreatedAt: now.Add(-time.Hour), Direction: share.DirectionIncoming},
			{ID: "s2", CreatedAt: now.Add(-time.Minute), Direction: share.DirectionOutgoing,
				ContentType: share.ContentSong, ItemID: "track-9", IsRead: true},
		},
	}

	var buf bytes.Buffer
	renderConversation(&buf, th, now)
	out := buf.String()

	require.Contains(t, out, "hola")
	require.Contains(t, out, "● ")
	require.Contains(t, out, "[shared song track-9]")
	require.Contains(t, out, "me:")
	require.Contains(t, out, "bruno:")
}
