package service

import (
	"regexp"
	"strings"

	"github.com/shestoi/paybridge/internal/payment"
)

const (
	maxEmailLen = 100
	maxPhoneLen = 50
	maxCodeLen  = 20
)

var (
	htmlTagRe = regexp.MustCompile(`<[^>]*>`)
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codeRe    = regexp.MustCompile(`[^A-Z0-9-]`)
)

// Contact контактные данные клиента после очистки
type Contact struct {
	Email string
	Phone string
}

// sanitizeText убирает html-теги, пробелы по краям и обрезает до maxLen символов
func sanitizeText(s string, maxLen int) string {
	s = strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
	if r := []rune(s); len(r) > maxLen {
		s = string(r[:maxLen])
	}
	return s
}

// ValidateContact чистит контакт; email обязателен, телефон нет
func ValidateContact(email, phone string) (Contact, error) {
	c := Contact{
		Email: sanitizeText(email, maxEmailLen),
		Phone: sanitizeText(phone, maxPhoneLen),
	}

	if c.Email == "" {
		return Contact{}, &payment.ValidationError{Field: "contact.email", Message: "email is required"}
	}
	if !emailRe.MatchString(c.Email) {
		return Contact{}, &payment.ValidationError{Field: "contact.email", Message: "invalid email format"}
	}
	return c, nil
}

// SanitizeCode нормализует код валюты/сети: верхний регистр, только [A-Z0-9-], не длиннее 20
func SanitizeCode(s string) string {
	s = codeRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
	if len(s) > maxCodeLen {
		s = s[:maxCodeLen]
	}
	return s
}
