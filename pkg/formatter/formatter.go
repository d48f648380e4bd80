package formatter

import (
	"sort"
	"strings"
)

// FormatAlert renders an alert into the plain-text shape used by the slack
// channel: severity tag, message, then sorted context lines.
func FormatAlert(severity, message string, context map[string]string) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(severity)
	sb.WriteString("] ")
	sb.WriteString(message)

	for _, k := range sortedKeys(context) {
		sb.WriteString("\n")
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(context[k])
	}

	return sb.String()
}

// FormatAlertMarkdownV2 renders the same alert shape for telegram's
// MarkdownV2 parse mode, severity in bold and every value escaped.
func FormatAlertMarkdownV2(severity, message string, context map[string]string) string {
	var sb strings.Builder
	sb.WriteString("*\\[")
	sb.WriteString(EscapeMarkdownV2(severity))
	sb.WriteString("\\]* ")
	sb.WriteString(EscapeMarkdownV2(message))

	for _, k := range sortedKeys(context) {
		sb.WriteString("\n")
		sb.WriteString(EscapeMarkdownV2(k))
		sb.WriteString(": ")
		sb.WriteString(EscapeMarkdownV2(context[k]))
	}

	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EscapeMarkdownV2 escapes special characters in Markdown V2 format
func EscapeMarkdownV2(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			sb.WriteRune('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
