package shopper

import "sort"

// TranscriptToMessages converts stored chat rows into an ordered conversation log.
// Rows are ordered by creation time (stable for equal timestamps) and rows with
// an unknown role or empty content are skipped.
func TranscriptToMessages(rows []TranscriptMessage) []ChatMessage {
	if len(rows) == 0 {
		return nil
	}

	sorted := make([]TranscriptMessage, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	messages := make([]ChatMessage, 0, len(sorted))
	for _, row := range sorted {
		if row.Content == "" {
			continue
		}
		if row.Role != RoleUser && row.Role != RoleAssistant {
			continue
		}
		messages = append(messages, ChatMessage{Role: row.Role, Content: row.Content})
	}
	return messages
}

// AppendMessage appends a turn and returns the updated log.
func AppendMessage(history []ChatMessage, role Role, content string) []ChatMessage {
	return append(history, ChatMessage{Role: role, Content: content})
}

// CloneMessages returns a copy that callers may keep without aliasing the log.
func CloneMessages(history []ChatMessage) []ChatMessage {
	if history == nil {
		return []ChatMessage{}
	}
	out := make([]ChatMessage, len(history))
	copy(out, history)
	return out
}
