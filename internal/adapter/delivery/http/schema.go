package http

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/short-links/internal/clicks"
	"github.com/vadimbarashkov/short-links/internal/entity"
	"github.com/vadimbarashkov/short-links/internal/usecase"
)

const statusError = "error"

// linkRequest represents the structure for a request to shorten a URL.
// LongURL is checked for syntax by the use case, so only presence is validated here.
type linkRequest struct {
	ShortKey string `json:"short_key" validate:"omitempty,alphanum,max=32"`
	LongURL  string `json:"long_url" validate:"required"`
	Days     *int   `json:"days" validate:"omitempty,min=1"`
}

// seedRequest asks for Count sample links.
type seedRequest struct {
	Count int `json:"count" validate:"required,min=1,max=1000"`
}

// linkResponse represents a stored link.
type linkResponse struct {
	ShortKey  string    `json:"short_key"`
	ShortURL  string    `json:"short_url"`
	LongURL   string    `json:"long_url"`
	TargetURL string    `json:"target_url"`
	Clicks    int64     `json:"clicks"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toLinkResponse(shortURL string, link *entity.Link) linkResponse {
	return linkResponse{
		ShortKey:  link.ShortKey,
		ShortURL:  shortURL,
		LongURL:   link.LongURL,
		TargetURL: link.TargetURL,
		Clicks:    link.Clicks,
		CreatedAt: link.CreatedAt,
		ExpiresAt: link.ExpiresAt,
	}
}

func toCreateResponse(res *usecase.CreateResult) linkResponse {
	return toLinkResponse(res.ShortURL, res.Link)
}

// linkStatsResponse represents the click count of a link, flushed and pending.
type linkStatsResponse struct {
	ShortKey string `json:"short_key"`
	Clicks   int64  `json:"clicks"`
	Stored   int64  `json:"stored"`
	Pending  int64  `json:"pending"`
}

func toLinkStatsResponse(stats *usecase.LinkStats) linkStatsResponse {
	return linkStatsResponse{
		ShortKey: stats.Link.ShortKey,
		Clicks:   stats.Total,
		Stored:   stats.Link.Clicks,
		Pending:  stats.Pending,
	}
}

type flushResponse struct {
	Clicks int64 `json:"clicks"`
	Keys   int   `json:"keys"`
	Failed int   `json:"failed"`
}

func toFlushResponse(res clicks.FlushResult) flushResponse {
	return flushResponse{
		Clicks: res.Clicks,
		Keys:   res.Keys,
		Failed: res.Failed,
	}
}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response.
type errorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []validationError `json:"errors,omitempty"`
}

var (
	emptyRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "empty request body",
	}

	invalidRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "invalid request body",
	}

	invalidURLResponse = errorResponse{
		Status:  statusError,
		Message: "invalid url",
	}

	invalidLifespanResponse = errorResponse{
		Status:  statusError,
		Message: "lifespan must be at least one day",
	}

	conflictResponse = errorResponse{
		Status:  statusError,
		Message: "short key is already in use",
	}

	linkNotFoundResponse = errorResponse{
		Status:  statusError,
		Message: "link not found",
	}

	flushInProgressResponse = errorResponse{
		Status:  statusError,
		Message: "click flush already in progress",
	}

	serverErrorResponse = errorResponse{
		Status:  statusError,
		Message: "server error occurred",
	}
)

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "alphanum":
		return "only letters and digits are allowed"
	case "max":
		return "value is too long"
	case "min":
		return "value is too small"
	default:
		return "invalid value"
	}
}

func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

func validationErrorResponse(err error) errorResponse {
	return errorResponse{
		Status:  statusError,
		Message: "validation error",
		Errors:  getValidationErrors(err),
	}
}
