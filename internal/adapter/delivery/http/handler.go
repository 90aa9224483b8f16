package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/short-links/internal/clicks"
	"github.com/vadimbarashkov/short-links/internal/entity"
	"github.com/vadimbarashkov/short-links/internal/usecase"
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

type linkUseCase interface {
	ShortURL(shortKey string) string
	ShortenURL(ctx context.Context, params usecase.CreateParams) (*usecase.CreateResult, error)
	ResolveShortKey(ctx context.Context, shortKey string) (*entity.Link, error)
	GetLink(ctx context.Context, shortKey string) (*entity.Link, error)
	GetLinkStats(ctx context.Context, shortKey string) (*usecase.LinkStats, error)
	ListLinks(ctx context.Context) ([]*entity.Link, error)
	DeleteLink(ctx context.Context, shortKey string) error
	PurgeLinks(ctx context.Context) error
	SeedLinks(ctx context.Context, count int) ([]*usecase.CreateResult, error)
	FlushClicks(ctx context.Context) (clicks.FlushResult, error)
}

type linkHandler struct {
	useCase  linkUseCase
	validate *validator.Validate
}

func newLinkHandler(useCase linkUseCase, validate *validator.Validate) *linkHandler {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &linkHandler{
		useCase:  useCase,
		validate: validate,
	}
}

// renderError writes the response for a use case error. Unexpected errors are
// attached to the request log entry.
func renderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidURL):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidURLResponse)
	case errors.Is(err, entity.ErrInvalidLifespan):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidLifespanResponse)
	case errors.Is(err, entity.ErrConflict):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, conflictResponse)
	case errors.Is(err, entity.ErrLinkNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, linkNotFoundResponse)
	case errors.Is(err, clicks.ErrFlushInProgress):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, flushInProgressResponse)
	default:
		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
	}
}

func (h *linkHandler) shortenURL(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.shortenURL"

	var req linkRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationErrorResponse(err))
		return
	}

	res, err := h.useCase.ShortenURL(r.Context(), usecase.CreateParams{
		ShortKey:     req.ShortKey,
		LongURL:      req.LongURL,
		LifespanDays: req.Days,
	})
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	if res.Created {
		render.Status(r, http.StatusCreated)
	} else {
		render.Status(r, http.StatusOK)
	}
	render.JSON(w, r, toCreateResponse(res))
}

func (h *linkHandler) listLinks(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.listLinks"

	links, err := h.useCase.ListLinks(r.Context())
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	resp := make([]linkResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, toLinkResponse(h.useCase.ShortURL(link.ShortKey), link))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func (h *linkHandler) getLink(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.getLink"

	shortKey := chi.URLParam(r, "shortKey")

	link, err := h.useCase.GetLink(r.Context(), shortKey)
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toLinkResponse(h.useCase.ShortURL(link.ShortKey), link))
}

func (h *linkHandler) getLinkStats(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.getLinkStats"

	shortKey := chi.URLParam(r, "shortKey")

	stats, err := h.useCase.GetLinkStats(r.Context(), shortKey)
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toLinkStatsResponse(stats))
}

func (h *linkHandler) deleteLink(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.deleteLink"

	shortKey := chi.URLParam(r, "shortKey")

	if err := h.useCase.DeleteLink(r.Context(), shortKey); err != nil {
		renderError(w, r, op, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *linkHandler) purgeLinks(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.purgeLinks"

	if err := h.useCase.PurgeLinks(r.Context()); err != nil {
		renderError(w, r, op, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *linkHandler) seedLinks(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.seedLinks"

	var req seedRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationErrorResponse(err))
		return
	}

	res, err := h.useCase.SeedLinks(r.Context(), req.Count)
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	resp := make([]linkResponse, 0, len(res))
	for _, created := range res {
		resp = append(resp, toCreateResponse(created))
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *linkHandler) flushClicks(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.flushClicks"

	res, err := h.useCase.FlushClicks(r.Context())
	if errors.Is(err, entity.ErrFlushPartialFailure) {
		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, toFlushResponse(res))
		return
	}
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toFlushResponse(res))
}

// redirect sends the visitor to the target URL of a live link and counts the visit.
func (h *linkHandler) redirect(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.redirect"

	shortKey := chi.URLParam(r, "shortKey")

	link, err := h.useCase.ResolveShortKey(r.Context(), shortKey)
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	http.Redirect(w, r, link.TargetURL, http.StatusFound)
}
