package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Gather/internal/domain"
)

// BuildMergedDocument собирает итоговый документ из результатов воркеров.
// outputs должны идти в порядке имён воркеров.
func BuildMergedDocument(requestID string, outputs [][]byte, mergedAt time.Time) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(outputs))
	for i, out := range outputs {
		var buf bytes.Buffer
		if err := json.Compact(&buf, out); err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrInvalidOutput, i, err)
		}
		items = append(items, buf.Bytes())
	}

	doc := domain.MergedDocument{
		RequestID: requestID,
		MergedAt:  mergedAt.UTC(),
		Items:     items,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal merged document: %w", err)
	}
	return data, nil
}
