package forecast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the user-facing reason a request failed.
type Kind int

const (
	KindUpstreamTransport Kind = iota
	KindInvalidInput
	KindLocationNotFound
	KindCityNotFound
	KindForecastUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindLocationNotFound:
		return "LocationNotFound"
	case KindCityNotFound:
		return "CityNotFound"
	case KindForecastUnavailable:
		return "ForecastUnavailable"
	default:
		return "UpstreamTransportError"
	}
}

var messages = map[Kind]string{
	KindInvalidInput:        "Informe o nome da cidade ou a latitude (lat) e a longitude (lon).",
	KindLocationNotFound:    "Não foi possível identificar a localidade para as coordenadas informadas.",
	KindCityNotFound:        "Cidade não encontrada.",
	KindForecastUnavailable: "Não foi possível obter os dados da previsão.",
	KindUpstreamTransport:   "Falha de comunicação com o serviço de previsão. Tente novamente mais tarde.",
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown to the caller.
func (e *Error) Message() string {
	return messages[e.Kind]
}

// HTTPStatus is 400 for invalid input and 500 for everything else.
func (e *Error) HTTPStatus() int {
	if e.Kind == KindInvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// newError classifies err as kind, unless the cause is a transport failure
// in which case it becomes KindUpstreamTransport.
func newError(kind Kind, err error) *Error {
	if isTransport(err) {
		kind = KindUpstreamTransport
	}
	return &Error{Kind: kind, Err: err}
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

// Classify maps any error to exactly one classified Error. Unclassified
// errors are treated as transport failures. It returns nil for nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUpstreamTransport, Err: err}
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	e := Classify(err)
	return e != nil && e.Kind == kind
}

// isTransport reports network and timeout failures. Responses that arrived
// with a bad status or body are not transport failures.
func isTransport(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
