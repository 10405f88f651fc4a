package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/coinledger/internal/apperrors"
)

const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	ServiceErrorType    = "service_error"
)

const maxBodyBytes = 64 << 10

var validate = validator.New()

func init() {
	configureValidator(validate)
}

type Struct any

type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HTTP statuses of well known errors; everything else is 500
var statuses = map[string]int{
	"UNAUTHORIZED":            http.StatusUnauthorized,
	"FORBIDDEN":               http.StatusForbidden,
	"ACCOUNT_INACTIVE":        http.StatusForbidden,
	"ACCOUNT_NOT_FOUND":       http.StatusNotFound,
	"ORDER_NOT_FOUND":         http.StatusNotFound,
	"INVALID_AMOUNT":          http.StatusUnprocessableEntity,
	"INVALID_REWARD":          http.StatusUnprocessableEntity,
	"REQUIREMENT_NOT_MET":     http.StatusUnprocessableEntity,
	"EMPTY_CART":              http.StatusUnprocessableEntity,
	"INVALID_ITEM":            http.StatusUnprocessableEntity,
	"INVALID_QUANTITY":        http.StatusUnprocessableEntity,
	"SELF_REFERRAL":           http.StatusUnprocessableEntity,
	"INVALID_REFERRAL_CODE":   http.StatusUnprocessableEntity,
	"REFERRER_INACTIVE":       http.StatusUnprocessableEntity,
	"INSUFFICIENT_BALANCE":    http.StatusPaymentRequired,
	"ON_COOLDOWN":             http.StatusTooManyRequests,
	"DAILY_LIMIT_REACHED":     http.StatusTooManyRequests,
	"REFERENCE_LIMIT_REACHED": http.StatusConflict,
	"ALREADY_REFERRED":        http.StatusConflict,
	"ITEM_UNAVAILABLE":        http.StatusConflict,
	"INSUFFICIENT_STOCK":      http.StatusConflict,
	"RESERVATION_CONFLICT":    http.StatusConflict,
	"ORDER_NOT_CANCELLABLE":   http.StatusConflict,
	"LEDGER_MISMATCH":         http.StatusConflict,
}

// Status of the error as HTTP status code
func Status(err error) int {
	if status, ok := statuses[apperrors.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func JSON(w http.ResponseWriter, data any) {
	JSONWithStatus(w, data, http.StatusOK)
}

// Render ServiceError
func ServiceError(w http.ResponseWriter, error string, code int) {
	response := ErrorResponse{
		Error:   ServiceErrorType,
		Message: error,
	}

	JSONWithStatus(w, response, code)
}

// Render service error with its stable code
// Internal errors are rendered without details
func Error(w http.ResponseWriter, err error) {
	code := apperrors.Code(err)
	response := ErrorResponse{
		Error:   ServiceErrorType,
		Code:    code,
		Message: err.Error(),
	}
	if code == apperrors.CodeInternal {
		response.Message = "Internal server error"
	}

	JSONWithStatus(w, response, Status(err))
}

// Render json DecodeError
func DecodeError(w http.ResponseWriter, err error) {
	response := ErrorResponse{
		Error:   DecodingErrorType,
		Message: "",
	}

	var typeErr *json.UnmarshalTypeError
	var sizeErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		response.Message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	case errors.As(err, &sizeErr):
		response.Message = fmt.Sprintf("Request body is larger than %d bytes", sizeErr.Limit)
	default:
		response.Message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	JSONWithStatus(w, response, http.StatusBadRequest)
}

// Render ValidationErrors
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		Error:   ValidationErrorType,
		Message: "Request validation failed",
		Fields:  make(map[string]string, len(errs)),
	}

	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "This field is required"
		case "min":
			message = fmt.Sprintf("Value is too small (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too large (maximum %s)", fieldError.Param())
		case "oneof":
			message = fmt.Sprintf("Value must be one of: %s", fieldError.Param())
		case "reference":
			message = "Value must be printable and have no spaces"
		default:
			message = "Invalid value"
		}

		response.Fields[fieldError.Field()] = message
	}

	JSONWithStatus(w, response, http.StatusBadRequest)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	err = validate.Struct(value)
	if err != nil {
		// pretty sure cast will be ok cause expecting T is valid struct
		errs := err.(validator.ValidationErrors)
		ValidationErrors(w, errs)
		return value, err
	}

	return value, nil
}

// JSONWithStatus sends data as json and enforces status code
func JSONWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
