// Package cli реализует инструмент командной строки Gather.
//
// # Обзор
//
// CLI работает с Gather API по HTTP и не импортирует внутренние
// пакеты системы.
//
// ## Client
//
// HTTP-клиент: submit, статус и результаты. Ошибки API возвращаются
// как *APIError с HTTP-кодом и кодом ошибки.
//
//	client := cli.NewClient("http://localhost:8080")
//	res, err := client.Scan(ctx, payload, "")
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения — в stderr:
// gather status REQUEST_ID --json | jq .
//
// ## Commands
//
//   - scan: отправка payload'а (--data, файл или stdin)
//   - status: состояние воркеров, --wait ждёт DONE
//   - findings: страница итогового документа
//
// Команды создаются фабриками (NewScanCmd и т.д.), принимающими
// clientFn и outputFn — замыкания для ленивого создания Client и
// Output после парсинга PersistentFlags.
package cli
