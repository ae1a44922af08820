package domain

// WorkerStatus — статус обработки запроса конкретным воркером.
//
// Жизненный цикл (только вперёд):
//
//	IN_PROGRESS → DONE
type WorkerStatus string

const (
	// WorkerStatusInProgress — запрос отправлен воркеру, результата ещё нет.
	WorkerStatusInProgress WorkerStatus = "IN_PROGRESS"

	// WorkerStatusDone — воркер записал результат в blob store.
	WorkerStatusDone WorkerStatus = "DONE"
)

// IsDone возвращает true, если воркер завершил обработку.
func (s WorkerStatus) IsDone() bool {
	return s == WorkerStatusDone
}

// FinalStatus — общий статус запроса.
//
// Жизненный цикл:
//
//	PENDING → MERGING → DONE
//	        ↖ (откат, если не удалось поставить merge-trigger в очередь)
type FinalStatus string

const (
	// FinalStatusPending — ждём завершения всех воркеров.
	FinalStatusPending FinalStatus = "PENDING"

	// FinalStatusMerging — merge-trigger поставлен в очередь, идёт слияние.
	FinalStatusMerging FinalStatus = "MERGING"

	// FinalStatusDone — итоговый документ записан.
	FinalStatusDone FinalStatus = "DONE"
)

// OrPending возвращает PENDING для пустого статуса.
// Отсутствующий статус эквивалентен PENDING.
func (s FinalStatus) OrPending() FinalStatus {
	if s == "" {
		return FinalStatusPending
	}
	return s
}

// IsTerminal возвращает true, если запрос полностью обработан.
func (s FinalStatus) IsTerminal() bool {
	return s == FinalStatusDone
}
