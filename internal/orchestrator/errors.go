package orchestrator

import "errors"

// Ошибки слияния.
var (
	// ErrMissingOutput — у воркера нет ключа результата, слияние невозможно.
	ErrMissingOutput = errors.New("worker output missing")

	// ErrInvalidOutput — результат воркера не является корректным JSON.
	ErrInvalidOutput = errors.New("worker output is not valid JSON")

	// ErrInvalidTrigger — сообщение merge-trigger без requestId.
	ErrInvalidTrigger = errors.New("merge trigger without requestId")
)
