// Package query отвечает на запросы о состоянии и результатах оркестрации.
//
// Status читает запись; Findings до финализации возвращает состояние
// воркеров, после — страницу итогового документа из blob store.
package query
