package errHandler

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/cradoe/leverpad/internal/apperr"
	"github.com/cradoe/leverpad/internal/helper"
	"github.com/cradoe/leverpad/internal/response"
)

type Mailer interface {
	Send(recipient string, data any, patterns ...string) error
}

type ErrorRepository struct {
	notificationEmail string
	logger            *slog.Logger
	help              *helper.HelperRepository
	mailer            Mailer
}

func New(notificationEmail string, mailer Mailer, logger *slog.Logger, help *helper.HelperRepository) *ErrorRepository {
	return &ErrorRepository{
		notificationEmail: notificationEmail,
		logger:            logger,
		help:              help,
		mailer:            mailer,
	}
}

// ReportServerError logs err with a stack trace and, when a notification
// address is configured, mails it. r may be nil for background work.
func (e *ErrorRepository) ReportServerError(r *http.Request, err error) {
	var (
		message = err.Error()
		method  string
		url     string
		trace   = string(debug.Stack())
	)
	if r != nil {
		method = r.Method
		url = r.URL.String()
	}

	requestAttrs := slog.Group("request", "method", method, "url", url)
	e.logger.Error(message, requestAttrs, "trace", trace)

	if e.notificationEmail != "" && e.mailer != nil {
		data := e.help.NewEmailData()
		data["Message"] = message
		data["RequestMethod"] = method
		data["RequestURL"] = url
		data["Trace"] = trace

		err := e.mailer.Send(e.notificationEmail, data, "error-notification.tmpl")
		if err != nil {
			trace = string(debug.Stack())
			e.logger.Error(err.Error(), requestAttrs, "trace", trace)
		}
	}
}

type Error struct {
	w       http.ResponseWriter
	r       *http.Request
	details any
	status  int
	message string
	headers http.Header
}

func (e *ErrorRepository) ErrorMessage(d *Error) {
	if d.message != "" {
		d.message = strings.ToUpper(d.message[:1]) + d.message[1:]
	}

	err := response.JSONErrorResponse(d.w, d.details, d.message, d.status, d.headers)
	if err != nil {
		e.ReportServerError(d.r, err)
		d.w.WriteHeader(http.StatusInternalServerError)
	}
}

func (e *ErrorRepository) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	e.ReportServerError(r, err)

	message := "The server encountered a problem and could not process your request"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusInternalServerError,
		message: message,
	})
}

// ServiceError renders an error returned by a service. Typed application
// errors keep their kind and message; anything else is a server error.
func (e *ErrorRepository) ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		e.ServerError(w, r, err)
		return
	}

	switch appErr.Kind {
	case apperr.KindInternal:
		e.ReportServerError(r, err)
	case apperr.KindConfiguration, apperr.KindExternalService:
		e.logger.Error(appErr.Message, "kind", appErr.Kind, "error", err, "url", r.URL.String())
	}

	var details any
	if appErr.Details != nil {
		details = appErr.Details
	}

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  apperr.Status(appErr.Kind),
		message: appErr.Message,
		details: details,
	})
}

func (e *ErrorRepository) NotFound(w http.ResponseWriter, r *http.Request) {
	message := "The requested resource could not be found"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusNotFound,
		message: message,
	})
}

func (e *ErrorRepository) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("The %s method is not supported for this resource", r.Method)
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusMethodNotAllowed,
		message: message,
	})
}

func (e *ErrorRepository) BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusBadRequest,
		message: err.Error(),
	})
}

func (e *ErrorRepository) FailedValidation(w http.ResponseWriter, r *http.Request, v any) {
	message := "Validation failed"
	if problems, ok := v.([]string); ok && len(problems) > 0 {
		message = strings.Join(problems, ". ")
	}

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnprocessableEntity,
		message: message,
		details: v,
	})
}

func (e *ErrorRepository) InvalidAuthenticationToken(w http.ResponseWriter, r *http.Request) {
	headers := make(http.Header)
	headers.Set("WWW-Authenticate", "Bearer")

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnauthorized,
		message: "Invalid authentication token",
		headers: headers,
	})
}

func (e *ErrorRepository) BasicAuthenticationRequired(w http.ResponseWriter, r *http.Request) {
	headers := make(http.Header)
	headers.Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)

	message := "You must be authenticated to access this resource"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnauthorized,
		message: message,
		headers: headers,
	})
}

func (e *ErrorRepository) AdminNotConfigured(w http.ResponseWriter, r *http.Request) {
	e.logger.Error("admin credentials are not configured", "url", r.URL.String())

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusInternalServerError,
		message: "Server configuration error",
	})
}
