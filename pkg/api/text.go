package api

import "strings"

// ExtractMessageText concatenates the trimmed text and refusal fragments
// of every non-user message item, joined by single spaces. It is total:
// nil slices, items without content, and non-message items all contribute
// nothing.
func ExtractMessageText(items []Item) string {
	var fragments []string
	for i := range items {
		if text := messageItemText(&items[i]); text != "" {
			fragments = append(fragments, text)
		}
	}
	return strings.Join(fragments, " ")
}

func messageItemText(item *Item) string {
	if item.Type != ItemTypeMessage || item.Message == nil {
		return ""
	}
	if item.Message.Role == RoleUser {
		return ""
	}

	var fragments []string
	for _, part := range item.Message.Content {
		switch part.Type {
		case ContentTypeInputText, ContentTypeOutputText:
			if t := strings.TrimSpace(part.Text); t != "" {
				fragments = append(fragments, t)
			}
		case ContentTypeRefusal:
			if t := strings.TrimSpace(part.Refusal); t != "" {
				fragments = append(fragments, t)
			}
		}
	}
	return strings.Join(fragments, " ")
}
