package grade_export

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type LayerErrorType int

const (
	LayerErrorBadParameter LayerErrorType = iota
	LayerErrorInternal
	LayerNotSupported
	LayerErrorNotFound
	// LayerErrorStaleGrades means the course total must be recalculated before exporting
	LayerErrorStaleGrades
)

type LayerError interface {
	error
	ToHTTPError() *echo.HTTPError
	Underlying() error
	Type() LayerErrorType
}

type layerError struct {
	err     error
	errType LayerErrorType
}

func (l layerError) Underlying() error {
	return l.err
}

func (l layerError) Unwrap() error {
	return l.err
}

func (l layerError) Type() LayerErrorType {
	return l.errType
}

func (l layerError) ToHTTPError() *echo.HTTPError {
	status := http.StatusInternalServerError
	switch l.errType {
	case LayerErrorBadParameter:
		status = http.StatusBadRequest
	case LayerErrorNotFound:
		status = http.StatusNotFound
	case LayerErrorStaleGrades:
		status = http.StatusConflict
	case LayerNotSupported:
		status = http.StatusNotImplemented
	}
	return echo.NewHTTPError(status, l.err.Error())
}

func (l layerError) Error() string {
	return l.err.Error()
}

func Err(err error, errType LayerErrorType) LayerError {
	if err == nil {
		return nil
	}
	return &layerError{err, errType}
}

func Errorf(errType LayerErrorType, format string, args ...any) LayerError {
	return &layerError{err: fmt.Errorf(format, args...), errType: errType}
}

// ErrorType returns the LayerErrorType of err, LayerErrorInternal for plain errors.
func ErrorType(err error) LayerErrorType {
	var le LayerError
	if errors.As(err, &le) {
		return le.Type()
	}
	return LayerErrorInternal
}

// ToHTTPError maps any error to an echo error, plain errors become 500.
func ToHTTPError(err error) *echo.HTTPError {
	var le LayerError
	if errors.As(err, &le) {
		return le.ToHTTPError()
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
