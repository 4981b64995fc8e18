// Пакет service: бизнес-логика очереди на проверку, утверждения заявок
// и поиска по каталогу.
package service

import "errors"

var (
	// ErrNotFound: заявка или запись не найдена.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation: данные заявки не прошли проверку.
	ErrValidation = errors.New("ошибка валидации")
	// ErrAmbiguousMatch: объект совпадает по положению с несколькими записями каталога.
	ErrAmbiguousMatch = errors.New("неоднозначное совпадение с каталогом")
	// ErrCatalogUnavailable: хранилище каталога недоступно или вернуло ошибку.
	ErrCatalogUnavailable = errors.New("каталог недоступен")
	// ErrCatalogConflict: запись каталога изменена параллельно.
	ErrCatalogConflict = errors.New("запись каталога изменена параллельно")
	// ErrApproveTimeout: утверждение не уложилось в отведённое время.
	ErrApproveTimeout = errors.New("превышено время утверждения")
	// ErrJobRunning: для заявки уже выполняется утверждение.
	ErrJobRunning = errors.New("утверждение заявки уже выполняется")
	// ErrRunnerStopped: сервис останавливается и не принимает задания.
	ErrRunnerStopped = errors.New("обработчик утверждений остановлен")
	// ErrQueueUnavailable: хранилище очереди заявок вернуло ошибку.
	ErrQueueUnavailable = errors.New("очередь заявок недоступна")
	// ErrReadOnly: запрос к каталогу изменяет данные.
	ErrReadOnly = errors.New("разрешены только запросы на чтение")
)
