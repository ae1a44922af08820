package repo

import "errors"

// Общие ошибки хранилища записей оркестрации.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись с таким request id уже существует.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConditionFailed — условие условного обновления не выполнено.
	// Для участников гонки это штатный исход: "не мой ход".
	ErrConditionFailed = errors.New("condition failed")
)
