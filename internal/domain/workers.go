package domain

import (
	"slices"
	"strings"
)

// Worker — описание одного downstream-воркера.
type Worker struct {
	// Name — имя воркера, ключ в Record.Engine и Record.Outputs.
	Name string `json:"name" yaml:"name"`

	// Queue — входная очередь воркера.
	Queue string `json:"queue" yaml:"queue"`

	// Bucket — bucket (коллекция) для результатов воркера.
	Bucket string `json:"bucket" yaml:"bucket"`
}

// WorkerSet — реестр сконфигурированных воркеров.
//
// Создаётся один раз при старте и передаётся по значению.
// Воркеры отсортированы по имени, имена уникальны.
type WorkerSet struct {
	workers []Worker
}

// NewWorkerSet создаёт реестр. Пустые имена отбрасываются,
// при повторе имени побеждает первое вхождение.
func NewWorkerSet(workers ...Worker) WorkerSet {
	seen := make(map[string]bool, len(workers))
	list := make([]Worker, 0, len(workers))
	for _, w := range workers {
		w.Name = strings.TrimSpace(w.Name)
		if w.Name == "" || seen[w.Name] {
			continue
		}
		seen[w.Name] = true
		list = append(list, w)
	}
	slices.SortFunc(list, func(a, b Worker) int {
		return strings.Compare(a.Name, b.Name)
	})
	return WorkerSet{workers: list}
}

// ParseWorkerNames разбирает список имён через запятую:
// пробелы обрезаются, пустые элементы и дубликаты отбрасываются,
// результат отсортирован.
func ParseWorkerNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len возвращает количество воркеров.
func (s WorkerSet) Len() int {
	return len(s.workers)
}

// Names возвращает отсортированные имена воркеров.
func (s WorkerSet) Names() []string {
	names := make([]string, len(s.workers))
	for i, w := range s.workers {
		names[i] = w.Name
	}
	return names
}

// All возвращает копию списка воркеров.
func (s WorkerSet) All() []Worker {
	return slices.Clone(s.workers)
}

// Lookup ищет воркера по имени.
func (s WorkerSet) Lookup(name string) (Worker, bool) {
	for _, w := range s.workers {
		if w.Name == name {
			return w, true
		}
	}
	return Worker{}, false
}

// Contains проверяет, сконфигурирован ли воркер.
func (s WorkerSet) Contains(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}
