// Package connectors pulls analytic run workbooks out of a mailbox.
package connectors

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"

	"chemrecon/internal"
	"chemrecon/internal/pipeline"
)

// RunSource lists recent messages of one mailbox folder or label.
type RunSource interface {
	Fetch(ctx context.Context, label string, max int) ([]internal.FetchedMessage, error)
}

// ExtractAttachments returns the attached and inline parts of msg that carry a
// readable run workbook. Other parts are ignored.
func ExtractAttachments(msg internal.FetchedMessage) ([]internal.RunAttachment, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", msg.MessageID, err)
	}

	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines))
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)

	out := []internal.RunAttachment{}
	for _, p := range parts {
		name := sanitizeFileName(p.FileName)
		if name == "" || !pipeline.SupportedExtension(name) || len(p.Content) == 0 {
			continue
		}
		out = append(out, internal.RunAttachment{
			MessageID: msg.MessageID,
			FileName:  name,
			Content:   p.Content,
		})
	}
	return out, nil
}

// maxFileNameBytes bounds stored attachment names.
const maxFileNameBytes = 120

func sanitizeFileName(input string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(input), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "|", "_", "?", "_", "*", "_", "\"", "_")
	name = repl.Replace(name)
	if len(name) > maxFileNameBytes {
		ext := filepath.Ext(name)
		if len(ext) > maxFileNameBytes/2 {
			ext = ""
		}
		n := maxFileNameBytes - len(ext)
		for n > 0 && !utf8.RuneStart(name[n]) {
			n--
		}
		name = name[:n] + ext
	}
	return name
}
