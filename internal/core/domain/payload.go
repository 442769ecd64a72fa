package domain

// Payload is the open, mergeable state accumulated across pipeline stages.
// Values must be JSON-serializable: the payload is checkpointed as JSONB and
// written verbatim as the final result artifact.
type Payload map[string]any

// Clone returns a deep copy. Stages receive a clone so a failed attempt can
// never corrupt the checkpointed state.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// MergeAdditive folds a stage's returned payload into the accumulated one.
// Keys are set or overwritten, never removed: a stage output that omits keys
// written by earlier stages leaves them intact.
func (p Payload) MergeAdditive(updated Payload) Payload {
	out := p
	if out == nil {
		out = Payload{}
	}
	for k, v := range updated {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, inner := range typed {
			out[k] = cloneValue(inner)
		}
		return out
	case Payload:
		return map[string]any(typed.Clone())
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = cloneValue(inner)
		}
		return out
	case []string:
		out := make([]string, len(typed))
		copy(out, typed)
		return out
	default:
		return v
	}
}
