package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Параметры пагинации.
const (
	DefaultPage = 1
	DefaultSize = 50
	MaxSize     = 200
)

// ParsePage разбирает номер страницы. Пустое, нечисловое или
// неположительное значение даёт DefaultPage.
func ParsePage(raw string) int {
	return parsePositive(raw, DefaultPage)
}

// ParseSize разбирает размер страницы: default DefaultSize, не больше MaxSize.
func ParseSize(raw string) int {
	return clampSize(parsePositive(raw, DefaultSize))
}

func parsePositive(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func clampSize(size int) int {
	if size <= 0 {
		return DefaultSize
	}
	return min(size, MaxSize)
}

// Paginate выделяет из документа коллекцию элементов и возвращает
// страницу page размера size вместе с общим числом элементов.
//
// Коллекция: поле items, если документ — объект с массивом items;
// сам документ, если он массив; иначе документ как единственный элемент.
// Страница за пределами коллекции пуста.
func Paginate(doc []byte, page, size int) ([]json.RawMessage, int, error) {
	items, err := collection(doc)
	if err != nil {
		return nil, 0, err
	}

	total := len(items)
	out := []json.RawMessage{}
	if page <= 0 || size <= 0 || page-1 >= (total+size-1)/size {
		return out, total, nil
	}

	from := (page - 1) * size
	to := min(total, from+size)
	return append(out, items[from:to]...), total, nil
}

func collection(doc []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(doc)
	if !json.Valid(trimmed) {
		return nil, ErrInvalidDocument
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		if raw, ok := obj["items"]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err == nil && items != nil {
				return items, nil
			}
		}
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}
