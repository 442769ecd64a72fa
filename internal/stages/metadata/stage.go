// Package metadata derives document metadata from the reference alone. It is
// the only pure stage: no collaborator, no transient failures.
package metadata

import (
	"context"
	"mime"
	"path"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type Stage struct{}

func New() *Stage {
	return &Stage{}
}

func (s *Stage) Execute(_ context.Context, ref domain.DocumentRef, payload domain.Payload) (domain.Payload, error) {
	payload[domain.KeyTitle] = path.Base(ref.Key)
	payload[domain.KeySource] = ref.Container

	if mimeType := mime.TypeByExtension(path.Ext(ref.Key)); mimeType != "" {
		payload[domain.KeyMimeType] = mimeType
	} else {
		payload[domain.KeyMimeType] = "application/octet-stream"
	}
	return payload, nil
}
