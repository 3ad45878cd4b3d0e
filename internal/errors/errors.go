package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrMedicationNotFound = &AppError{Code: "MED_001", Message: "medication not found"}
	ErrNoCurrentConfig    = &AppError{Code: "MED_002", Message: "medication has no current config"}
	ErrDuplicateTime      = &AppError{Code: "MED_003", Message: "duplicate dose time"}

	ErrIntakeNotFound = &AppError{Code: "INTAKE_001", Message: "intake record not found"}

	ErrNoteNotFound = &AppError{Code: "NOTE_001", Message: "daily note not found"}

	ErrAlarmArming   = &AppError{Code: "ALARM_001", Message: "failed to arm alarm"}
	ErrAlarmNotFound = &AppError{Code: "ALARM_002", Message: "alarm not found"}

	ErrStoreWrite = &AppError{Code: "STORE_001", Message: "store write failed"}
	ErrStoreRead  = &AppError{Code: "STORE_002", Message: "store read failed"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
