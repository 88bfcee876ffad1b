package telegram

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gotd/td/tg"
)

const maxNameBytes = 200

// DisplayName picks the upload name for a video: the document's own file
// name, else the first caption line, else video_<id>.mp4
func DisplayName(msgID int, doc *tg.Document, caption string) string {
	fallback := fmt.Sprintf("video_%d.mp4", msgID)

	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			if name := sanitizeName(fn.FileName); name != "" {
				return name
			}
		}
	}

	line, _, _ := strings.Cut(caption, "\n")
	stem := sanitizeName(line)
	if stem == "" {
		return fallback
	}
	return truncate(stem, maxNameBytes-len(".mp4")) + extensionFor(doc.MimeType)
}

func extensionFor(mimeType string) string {
	if mimeType != "" {
		if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
			return m.Extension()
		}
	}
	return ".mp4"
}

// sanitizeName strips path separators and characters Drive and most file
// systems reject
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`:*?"<>|`, r):
			b.WriteByte('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	return truncate(out, maxNameBytes)
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimRight(s, " .")
}
