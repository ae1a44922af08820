package domain

import (
	"fmt"
	"time"
)

// OutputKey строит ключ blob'а с результатом воркера:
//
//	{worker}/{yyyy}/{MM}/{dd}/{HH}/{requestId}-{messageId}.json
//
// Время берётся в UTC.
func OutputKey(worker, requestID, messageID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s-%s.json", worker, at.UTC().Format("2006/01/02/15"), requestID, messageID)
}

// MergedKey строит ключ итогового документа.
func MergedKey(requestID string) string {
	return requestID + ".json"
}
