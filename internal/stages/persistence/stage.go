// Package persistence publishes the final payload to its deterministic
// result location. The execution only reaches Succeeded once this write
// lands, so downstream consumers can treat the artifact's existence as the
// completion signal.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type Stage struct {
	storage ports.ObjectStorage
	prefix  string
}

func New(storage ports.ObjectStorage, prefix string) *Stage {
	if prefix == "" {
		prefix = "results"
	}
	return &Stage{storage: storage, prefix: prefix}
}

// ResultKey is the stable output location for a document; format and
// location are part of the external contract.
func (s *Stage) ResultKey(ref domain.DocumentRef) string {
	return s.prefix + "/" + ref.Key + ".json"
}

func (s *Stage) Execute(ctx context.Context, ref domain.DocumentRef, payload domain.Payload) (domain.Payload, error) {
	resultKey := s.ResultKey(ref)

	artifact := domain.Payload{
		"container": ref.Container,
		"key":       ref.Key,
	}.MergeAdditive(payload)

	encoded, err := json.Marshal(artifact)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPermanent, "encode result", err)
	}

	if err := s.storage.Save(ctx, ref.Container, resultKey, bytes.NewReader(encoded)); err != nil {
		return nil, domain.WrapError(domain.ErrTransient, fmt.Sprintf("write result %s", resultKey), err)
	}

	payload[domain.KeyResultPath] = resultKey
	return payload, nil
}
