// Package common - errors.go определяет ошибки ядра баллов,
// которые используются во всех модулях.
// Каждая ошибка несёт вид (Kind) и код, чтобы обработчики могли
// различать типы проблем и показывать пользователю понятные сообщения.
package common

import (
	"context"
	"errors"
)

// Kind - класс ошибки.
type Kind int

const (
	KindUnknown     Kind = iota
	KindNotFound         // карта/товар/пользователь/заявка не найдены
	KindConflict         // состояние не позволяет: карта использована, нет на складе
	KindGated            // ограничено временем или политикой: истекла, ещё не действует, заблокирована
	KindRejected         // бизнес-правило: мало баллов, нет права
	KindPersistence      // хранилище отказало - можно повторить всю операцию целиком
	KindTimeout          // хранилище не ответило вовремя
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGated:
		return "gated"
	case KindRejected:
		return "rejected"
	case KindPersistence:
		return "persistence"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error - структурированная ошибка ядра.
// Пустой Code означает «любая ошибка этого вида» (используется в errors.Is).
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is: ErrNotFound совпадает с любой ошибкой вида NotFound,
// ErrCardNotFound - только с самой собой.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Ошибки-классы (для errors.Is по виду)
var (
	ErrNotFound    = &Error{Kind: KindNotFound, Msg: "не найдено"}
	ErrConflict    = &Error{Kind: KindConflict, Msg: "конфликт состояния"}
	ErrGated       = &Error{Kind: KindGated, Msg: "операция сейчас недоступна"}
	ErrRejected    = &Error{Kind: KindRejected, Msg: "операция отклонена"}
	ErrPersistence = &Error{Kind: KindPersistence, Msg: "ошибка хранилища"}
	ErrTimeout     = &Error{Kind: KindTimeout, Msg: "хранилище не ответило вовремя"}
)

// Ошибки поиска
var (
	ErrUserNotFound       = newError(KindNotFound, "user_not_found", "пользователь не найден")
	ErrCardNotFound       = newError(KindNotFound, "card_not_found", "карта не найдена")
	ErrItemNotFound       = newError(KindNotFound, "item_not_found", "награда не найдена")
	ErrRedemptionNotFound = newError(KindNotFound, "redemption_not_found", "заявка не найдена")
	ErrAchievementMissing = newError(KindNotFound, "achievement_not_found", "достижение не найдено")
)

// Ошибки карт пополнения
var (
	// ErrCardAlreadyUsed - карта уже активирована (в том числе проигранная гонка)
	ErrCardAlreadyUsed = newError(KindConflict, "card_already_used", "карта уже использована")
	// ErrCardExpired - срок действия карты истёк
	ErrCardExpired = newError(KindGated, "card_expired", "срок действия карты истёк")
	// ErrCardNotYetValid - карта ещё не действует
	ErrCardNotYetValid = newError(KindGated, "card_not_yet_valid", "карта ещё не действует")
	// ErrCardLocked - исчерпан лимит неудачных попыток
	ErrCardLocked = newError(KindGated, "card_locked", "карта заблокирована после неудачных попыток")
	// ErrCardNotAssigned - карта выдана другому пользователю
	ErrCardNotAssigned = newError(KindRejected, "card_not_assigned", "эта карта выдана другому пользователю")
)

// Ошибки каталога наград
var (
	ErrOutOfStock         = newError(KindConflict, "out_of_stock", "награда закончилась")
	ErrNotEligible        = newError(KindRejected, "not_eligible", "награда недоступна для вашей роли")
	ErrInsufficientPoints = newError(KindRejected, "insufficient_points", "недостаточно баллов")
	ErrInvalidTransition  = newError(KindConflict, "invalid_transition", "недопустимая смена статуса заявки")
)

// Общие ошибки ввода
var (
	ErrInvalidAmount = newError(KindRejected, "invalid_amount", "количество баллов должно быть положительным")
	ErrInvalidInput  = newError(KindRejected, "invalid_input", "некорректные данные запроса")
)

// KindOf возвращает вид ошибки. Дедлайн контекста считается таймаутом.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Retriable - можно ли повторить всю операцию целиком.
// Повторять только половину составной операции (например, одну запись в журнал) нельзя.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindPersistence, KindTimeout:
		return true
	}
	return false
}

// storeError сохраняет причину, оставаясь ошибкой вида Persistence/Timeout.
type storeError struct {
	kind  *Error
	op    string
	cause error
}

func (e *storeError) Error() string {
	return e.kind.Msg + " (" + e.op + "): " + e.cause.Error()
}

func (e *storeError) Unwrap() []error { return []error{e.kind, e.cause} }

// StoreError оборачивает ошибку драйвера хранилища.
// Доменные ошибки (*Error) возвращаются как есть.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := ErrPersistence
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &storeError{kind: kind, op: op, cause: err}
}
