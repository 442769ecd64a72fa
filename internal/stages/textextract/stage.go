// Package textextract turns the stored document into plain text. Documents
// with an embedded text layer (plain text, PDFs with selectable text) are
// read locally; everything else goes to the OCR collaborator.
package textextract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type Stage struct {
	storage  ports.ObjectStorage
	detector ports.TextDetector
}

func New(storage ports.ObjectStorage, detector ports.TextDetector) *Stage {
	return &Stage{storage: storage, detector: detector}
}

func (s *Stage) Execute(ctx context.Context, ref domain.DocumentRef, payload domain.Payload) (domain.Payload, error) {
	raw, err := s.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrPermanent, "extract text", fmt.Errorf("object %s is empty", ref))
	}

	if text, ok := localText(ref.Key, raw); ok {
		payload[domain.KeyText] = text
		return payload, nil
	}

	lines, err := s.detector.DetectText(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("detect text for %s: %w", ref, err)
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return nil, domain.WrapError(domain.ErrPermanent, "extract text", fmt.Errorf("no text detected in %s", ref))
	}

	payload[domain.KeyText] = text
	return payload, nil
}

func (s *Stage) read(ctx context.Context, ref domain.DocumentRef) ([]byte, error) {
	reader, err := s.storage.Open(ctx, ref.Container, ref.Key)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, "open source object", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, "read source object", err)
	}
	return raw, nil
}

// localText extracts text without the OCR collaborator when the document
// carries it directly. A scanned or malformed PDF simply falls through to OCR.
func localText(key string, raw []byte) (string, bool) {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		text, err := pdfText(raw)
		if err != nil || strings.TrimSpace(text) == "" {
			return "", false
		}
		return strings.TrimSpace(text), true
	case ".txt", ".md", ".csv", ".log":
		if !utf8.Valid(raw) {
			return "", false
		}
		text := strings.TrimSpace(string(raw))
		return text, text != ""
	default:
		return "", false
	}
}

func pdfText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text layer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return "", fmt.Errorf("copy pdf text: %w", err)
	}
	return buf.String(), nil
}
