package main

import (
	"errors"
	"fmt"
)

// ErrorKind classifica as falhas de negócio do checkout. Os handlers mapeiam
// o kind para o status HTTP, sem inspecionar mensagens de erro.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindAuthentication    ErrorKind = "authentication_failure"
	KindUpstream          ErrorKind = "upstream_failure"
)

// CheckoutError é o erro tipado das operações de checkout
type CheckoutError struct {
	Kind ErrorKind
	msg  string
	err  error
}

func (e *CheckoutError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *CheckoutError) Unwrap() error {
	return e.err
}

// NewCheckoutError cria um erro tipado com uma mensagem formatada
func NewCheckoutError(kind ErrorKind, format string, args ...any) *CheckoutError {
	return &CheckoutError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WrapCheckoutError envolve uma causa mantendo o kind para o caller
func WrapCheckoutError(kind ErrorKind, err error, format string, args ...any) *CheckoutError {
	return &CheckoutError{Kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf extrai o ErrorKind de um erro; retorna KindUpstream para erros
// não tipados (falhas inesperadas de infra)
func KindOf(err error) ErrorKind {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUpstream
}
