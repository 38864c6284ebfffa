package errors

import (
	"errors"
	"fmt"
)

const (
	InternalServerError = "internal server error"
	BadRequest          = "bad request"
	NotFound            = "not_found"
	Conflict            = "conflict"

	InvalidDataCode         = 402
	ConflictErrorCode       = 409
	InternalServerErrorCode = 500
	NotFoundErrorCode       = 404
)

// AppError представляет собой стандартизированную структуру ошибки для API.
type AppError struct {
	Code         int    `json:"code"`    // HTTP статус код
	Message      string `json:"message"` // Сообщение для клиента
	Err          error  `json:"-"`       // Внутренняя ошибка, не для клиента
	IsUserFacing bool   `json:"-"`       // Флаг, указывающий, можно ли показывать `Err`
}

func (a *AppError) Error() string {
	if a == nil {
		return ""
	}
	if a.Err != nil {
		return fmt.Sprintf("%s (code: %d): %v", a.Message, a.Code, a.Err)
	}
	return fmt.Sprintf("%s (code: %d)", a.Message, a.Code)
}

func (a *AppError) Unwrap() error { return a.Err }

// NewAppError создает новый экземпляр AppError.
func NewAppError(httpCode int, message string, err error, isUserFacing bool) *AppError {
	return &AppError{
		Code:         httpCode,
		Message:      message,
		Err:          err,
		IsUserFacing: isUserFacing,
	}
}

// ValidationError - некорректные входные данные (индекс реле, состояние).
// Возвращается до любого обращения к оборудованию.
type ValidationError struct {
	Field string
	Value interface{}
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Msg
	}
	return fmt.Sprintf("validation error: %s=%v: %s", e.Field, e.Value, e.Msg)
}

// NewValidationError создает ValidationError.
func NewValidationError(field string, value interface{}, msg string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Msg: msg}
}

// TransportError - сбой соединения с контроллером (отказ, обрыв, ошибка декодирования).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SequenceError - отказ в операции секвенсора. Состояние не изменяется.
type SequenceError struct {
	Kind error
	Msg  string
}

func (e *SequenceError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *SequenceError) Unwrap() error { return e.Kind }

// NewSequenceError создает SequenceError указанного вида.
func NewSequenceError(kind error, msg string) *SequenceError {
	return &SequenceError{Kind: kind, Msg: msg}
}

// MeasurementError - неожиданная ошибка во время подтеста.
type MeasurementError struct {
	TestNumber int
	Step       string
	Err        error
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("sub-test %d failed at %s: %v", e.TestNumber, e.Step, e.Err)
}

func (e *MeasurementError) Unwrap() error { return e.Err }

var (
	ErrDataNotFound = errors.New("data not found")
	ErrInternal     = errors.New("internal error")

	ErrAlreadyRunning          = errors.New("test already running")
	ErrBatchInfoMissing        = errors.New("batch information not set")
	ErrSerialNotProvided       = errors.New("serial number not provided")
	ErrConnectivityCheckFailed = errors.New("hardware connection check failed")
	ErrNotRunning              = errors.New("test is not running")
	ErrSerialNotRequested      = errors.New("serial number is not being requested")

	ErrDeviceError     = errors.New("controller returned error status")
	ErrStorageDisabled = errors.New("result storage is disabled")
)

// IsValidation сообщает, является ли err ошибкой валидации.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransport сообщает, является ли err транспортной ошибкой.
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}
