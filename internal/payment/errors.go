package payment

import (
	"errors"
	"fmt"
)

// ErrIgnored уведомление валидно, но не несёт изменения статуса
// (промежуточный статус провайдера, неинтересный тип события)
var ErrIgnored = errors.New("notification carries no status change")

// ValidationError некорректный запрос клиента (400, не ретраим)
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthError подпись уведомления не сошлась или отсутствует.
// Состояние при этом не меняется.
type AuthError struct {
	Provider Provider
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s notification rejected: %s", e.Provider, e.Reason)
}

// ParseError подлинное уведомление без обязательных полей.
// Логируется и подтверждается: повторная доставка того же тела не поможет.
type ParseError struct {
	Provider Provider
	Field    string
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s notification malformed: %s: %s", e.Provider, e.Field, e.Message)
}

// ProviderError сбой API провайдера при создании инвойса/сессии, включая таймаут
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StoreError сбой хранилища; запрос завершается целиком, частичных записей нет
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
