package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/short-links/internal/clicks"
	"github.com/vadimbarashkov/short-links/internal/entity"
	"github.com/vadimbarashkov/short-links/internal/usecase"
)

const testDomain = "http://yz0101.com"

type MockLinkUseCase struct {
	mock.Mock
}

func (m *MockLinkUseCase) ShortURL(shortKey string) string {
	return testDomain + "/" + shortKey
}

func (m *MockLinkUseCase) ShortenURL(ctx context.Context, params usecase.CreateParams) (*usecase.CreateResult, error) {
	args := m.Called(ctx, params)
	if res := args.Get(0); res != nil {
		return res.(*usecase.CreateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLinkUseCase) ResolveShortKey(ctx context.Context, shortKey string) (*entity.Link, error) {
	args := m.Called(ctx, shortKey)
	if link := args.Get(0); link != nil {
		return link.(*entity.Link), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLinkUseCase) GetLink(ctx context.Context, shortKey string) (*entity.Link, error) {
	args := m.Called(ctx, shortKey)
	if link := args.Get(0); link != nil {
		return link.(*entity.Link), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLinkUseCase) GetLinkStats(ctx context.Context, shortKey string) (*usecase.LinkStats, error) {
	args := m.Called(ctx, shortKey)
	if stats := args.Get(0); stats != nil {
		return stats.(*usecase.LinkStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLinkUseCase) ListLinks(ctx context.Context) ([]*entity.Link, error) {
	args := m.Called(ctx)
	if links := args.Get(0); links != nil {
		return links.([]*entity.Link), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLinkUseCase) DeleteLink(ctx context.Context, shortKey string) error {
	args := m.Called(ctx, shortKey)
	return args.Error(0)
}

func (m *MockLinkUseCase) PurgeLinks(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLinkUseCase) SeedLinks(ctx context.Context, count int) ([]*usecase.CreateResult, error) {
	args := m.Called(ctx, count)
	if res := args.Get(0); res != nil {
		return res.([]*usecase.CreateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLinkUseCase) FlushClicks(ctx context.Context) (clicks.FlushResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(clicks.FlushResult), args.Error(1)
}

type HandlersTestSuite struct {
	suite.Suite
	errUnknown      error
	logger          *httplog.Logger
	linkUseCaseMock *MockLinkUseCase
	server          *httptest.Server
	e               *httpexpect.Expect
}

func (suite *HandlersTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *HandlersTestSuite) SetupSubTest() {
	suite.linkUseCaseMock = new(MockLinkUseCase)

	router := NewRouter(suite.logger, suite.linkUseCaseMock, WithPurge(), WithSeed())
	suite.server = httptest.NewServer(router)
	suite.T().Cleanup(func() {
		suite.server.Close()
	})

	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *HandlersTestSuite) TearDownSubTest() {
	suite.linkUseCaseMock.AssertExpectations(suite.T())
}

func (suite *HandlersTestSuite) link() *entity.Link {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &entity.Link{
		ShortKey:  "abc",
		LongURL:   "example.com/page",
		TargetURL: "https://example.com/page",
		CreatedAt: created,
		ExpiresAt: created.AddDate(0, 0, 10),
		Clicks:    4,
	}
}

func (suite *HandlersTestSuite) TestPing() {
	const path = "/api/v1/ping"

	suite.Run("success", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			Text().IsEqual("pong")
	})
}

func (suite *HandlersTestSuite) TestShortenURL() {
	const path = "/api/v1/links"

	suite.Run("empty request body", func() {
		resp := suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.HasValue("message", "empty request body")
	})

	suite.Run("invalid request body", func() {
		resp := suite.e.POST(path).
			WithJSON("invalid body").
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.HasValue("message", "invalid request body")
	})

	suite.Run("validation error", func() {
		resp := suite.e.POST(path).
			WithJSON(map[string]any{"short_key": "ab-c"}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		errs := resp.Value("errors").Array()
		errs.Length().IsEqual(2)
		errs.Value(0).Object().HasValue("field", "short_key")
		errs.Value(1).Object().HasValue("field", "long_url")
	})

	suite.Run("non-positive days", func() {
		resp := suite.e.POST(path).
			WithJSON(map[string]any{"long_url": "https://example.com", "days": 0}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.Value("errors").Array().Value(0).Object().
			HasValue("field", "days").
			HasValue("message", "value is too small")
	})

	suite.Run("invalid url", func() {
		suite.linkUseCaseMock.
			On("ShortenURL", mock.Anything, usecase.CreateParams{LongURL: "invalid url"}).
			Once().
			Return(nil, fmt.Errorf("wrapped: %w", entity.ErrInvalidURL))

		resp := suite.e.POST(path).
			WithJSON(map[string]any{"long_url": "invalid url"}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("message", "invalid url")
	})

	suite.Run("conflict", func() {
		suite.linkUseCaseMock.
			On("ShortenURL", mock.Anything, usecase.CreateParams{ShortKey: "abc", LongURL: "https://example.com"}).
			Once().
			Return(nil, entity.ErrConflict)

		resp := suite.e.POST(path).
			WithJSON(map[string]any{"short_key": "abc", "long_url": "https://example.com"}).
			Expect().
			Status(http.StatusConflict).
			JSON().Object()

		resp.HasValue("status", "error")
	})

	suite.Run("server error", func() {
		suite.linkUseCaseMock.
			On("ShortenURL", mock.Anything, usecase.CreateParams{LongURL: "https://example.com"}).
			Once().
			Return(nil, suite.errUnknown)

		resp := suite.e.POST(path).
			WithJSON(map[string]any{"long_url": "https://example.com"}).
			Expect().
			Status(http.StatusInternalServerError).
			JSON().Object()

		resp.HasValue("message", "server error occurred")
	})

	suite.Run("created", func() {
		days := 10
		suite.linkUseCaseMock.
			On("ShortenURL", mock.Anything, usecase.CreateParams{ShortKey: "abc", LongURL: "https://example.com/page", LifespanDays: &days}).
			Once().
			Return(&usecase.CreateResult{ShortURL: testDomain + "/abc", Link: suite.link(), Created: true}, nil)

		resp := suite.e.POST(path).
			WithJSON(map[string]any{"short_key": "abc", "long_url": "https://example.com/page", "days": 10}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		resp.HasValue("short_key", "abc")
		resp.HasValue("short_url", "http://yz0101.com/abc")
		resp.HasValue("long_url", "example.com/page")
		resp.HasValue("target_url", "https://example.com/page")
		resp.ContainsKey("created_at")
		resp.ContainsKey("expires_at")
	})

	suite.Run("deduplicated", func() {
		suite.linkUseCaseMock.
			On("ShortenURL", mock.Anything, usecase.CreateParams{LongURL: "https://example.com/page"}).
			Once().
			Return(&usecase.CreateResult{ShortURL: testDomain + "/abc", Link: suite.link()}, nil)

		suite.e.POST(path).
			WithJSON(map[string]any{"long_url": "https://example.com/page"}).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("short_url", "http://yz0101.com/abc")
	})
}

func (suite *HandlersTestSuite) TestListLinks() {
	const path = "/api/v1/links"

	suite.Run("server error", func() {
		suite.linkUseCaseMock.On("ListLinks", mock.Anything).Once().Return(nil, suite.errUnknown)

		suite.e.GET(path).
			Expect().
			Status(http.StatusInternalServerError)
	})

	suite.Run("empty", func() {
		suite.linkUseCaseMock.On("ListLinks", mock.Anything).Once().Return([]*entity.Link{}, nil)

		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			JSON().Array().IsEmpty()
	})

	suite.Run("success", func() {
		suite.linkUseCaseMock.On("ListLinks", mock.Anything).Once().Return([]*entity.Link{suite.link()}, nil)

		resp := suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			JSON().Array()

		resp.Length().IsEqual(1)
		resp.Value(0).Object().
			HasValue("short_key", "abc").
			HasValue("short_url", "http://yz0101.com/abc").
			HasValue("clicks", 4)
	})
}

func (suite *HandlersTestSuite) TestGetLink() {
	const path = "/api/v1/links/%s"

	suite.Run("link not found", func() {
		suite.linkUseCaseMock.On("GetLink", mock.Anything, "abc").Once().Return(nil, entity.ErrLinkNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc")).
			Expect().
			Status(http.StatusNotFound).
			JSON().Object().
			HasValue("message", "link not found")
	})

	suite.Run("success", func() {
		suite.linkUseCaseMock.On("GetLink", mock.Anything, "abc").Once().Return(suite.link(), nil)

		suite.e.GET(fmt.Sprintf(path, "abc")).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("short_key", "abc").
			HasValue("target_url", "https://example.com/page")
	})
}

func (suite *HandlersTestSuite) TestGetLinkStats() {
	const path = "/api/v1/links/%s/stats"

	suite.Run("link not found", func() {
		suite.linkUseCaseMock.On("GetLinkStats", mock.Anything, "abc").Once().Return(nil, entity.ErrLinkNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc")).
			Expect().
			Status(http.StatusNotFound)
	})

	suite.Run("server error", func() {
		suite.linkUseCaseMock.On("GetLinkStats", mock.Anything, "abc").Once().Return(nil, suite.errUnknown)

		suite.e.GET(fmt.Sprintf(path, "abc")).
			Expect().
			Status(http.StatusInternalServerError)
	})

	suite.Run("success", func() {
		suite.linkUseCaseMock.On("GetLinkStats", mock.Anything, "abc").Once().Return(&usecase.LinkStats{
			Link:    suite.link(),
			Pending: 3,
			Total:   7,
		}, nil)

		resp := suite.e.GET(fmt.Sprintf(path, "abc")).
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("short_key", "abc")
		resp.HasValue("clicks", 7)
		resp.HasValue("stored", 4)
		resp.HasValue("pending", 3)
	})
}

func (suite *HandlersTestSuite) TestDeleteLink() {
	const path = "/api/v1/links/%s"

	suite.Run("link not found", func() {
		suite.linkUseCaseMock.On("DeleteLink", mock.Anything, "abc").Once().Return(entity.ErrLinkNotFound)

		suite.e.DELETE(fmt.Sprintf(path, "abc")).
			Expect().
			Status(http.StatusNotFound)
	})

	suite.Run("success", func() {
		suite.linkUseCaseMock.On("DeleteLink", mock.Anything, "abc").Once().Return(nil)

		suite.e.DELETE(fmt.Sprintf(path, "abc")).
			Expect().
			Status(http.StatusNoContent).
			NoContent()
	})
}

func (suite *HandlersTestSuite) TestPurgeLinks() {
	const path = "/api/v1/links"

	suite.Run("server error", func() {
		suite.linkUseCaseMock.On("PurgeLinks", mock.Anything).Once().Return(suite.errUnknown)

		suite.e.DELETE(path).
			Expect().
			Status(http.StatusInternalServerError)
	})

	suite.Run("success", func() {
		suite.linkUseCaseMock.On("PurgeLinks", mock.Anything).Once().Return(nil)

		suite.e.DELETE(path).
			Expect().
			Status(http.StatusNoContent)
	})

	suite.Run("disabled", func() {
		server := httptest.NewServer(NewRouter(suite.logger, suite.linkUseCaseMock))
		defer server.Close()

		httpexpect.Default(suite.T(), server.URL).
			DELETE(path).
			Expect().
			Status(http.StatusMethodNotAllowed)
	})
}

func (suite *HandlersTestSuite) TestSeedLinks() {
	const path = "/api/v1/links/seed"

	suite.Run("empty request body", func() {
		suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("message", "empty request body")
	})

	suite.Run("count out of range", func() {
		resp := suite.e.POST(path).
			WithJSON(map[string]any{"count": 5000}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("message", "validation error")
		resp.Value("errors").Array().Value(0).Object().HasValue("field", "count")
	})

	suite.Run("server error", func() {
		suite.linkUseCaseMock.On("SeedLinks", mock.Anything, 2).Once().Return(nil, suite.errUnknown)

		suite.e.POST(path).
			WithJSON(map[string]any{"count": 2}).
			Expect().
			Status(http.StatusInternalServerError)
	})

	suite.Run("success", func() {
		link := suite.link()
		suite.linkUseCaseMock.On("SeedLinks", mock.Anything, 1).Once().Return([]*usecase.CreateResult{
			{ShortURL: testDomain + "/abc", Link: link, Created: true},
		}, nil)

		resp := suite.e.POST(path).
			WithJSON(map[string]any{"count": 1}).
			Expect().
			Status(http.StatusCreated).
			JSON().Array()

		resp.Length().IsEqual(1)
		resp.Value(0).Object().HasValue("short_url", testDomain+"/abc")
	})

	suite.Run("disabled", func() {
		server := httptest.NewServer(NewRouter(suite.logger, suite.linkUseCaseMock))
		defer server.Close()

		httpexpect.Default(suite.T(), server.URL).
			POST(path).
			WithJSON(map[string]any{"count": 1}).
			Expect().
			Status(http.StatusMethodNotAllowed)
	})
}

func (suite *HandlersTestSuite) TestFlushClicks() {
	const path = "/api/v1/clicks/flush"

	suite.Run("in progress", func() {
		suite.linkUseCaseMock.On("FlushClicks", mock.Anything).Once().
			Return(clicks.FlushResult{}, clicks.ErrFlushInProgress)

		suite.e.POST(path).
			Expect().
			Status(http.StatusConflict).
			JSON().Object().
			HasValue("message", "click flush already in progress")
	})

	suite.Run("partial failure", func() {
		suite.linkUseCaseMock.On("FlushClicks", mock.Anything).Once().
			Return(clicks.FlushResult{Clicks: 2, Keys: 1, Failed: 1}, entity.ErrFlushPartialFailure)

		resp := suite.e.POST(path).
			Expect().
			Status(http.StatusInternalServerError).
			JSON().Object()

		resp.HasValue("clicks", 2)
		resp.HasValue("keys", 1)
		resp.HasValue("failed", 1)
	})

	suite.Run("server error", func() {
		suite.linkUseCaseMock.On("FlushClicks", mock.Anything).Once().
			Return(clicks.FlushResult{}, suite.errUnknown)

		suite.e.POST(path).
			Expect().
			Status(http.StatusInternalServerError).
			JSON().Object().
			NotContainsKey("clicks")
	})

	suite.Run("success", func() {
		suite.linkUseCaseMock.On("FlushClicks", mock.Anything).Once().
			Return(clicks.FlushResult{Clicks: 5, Keys: 2}, nil)

		resp := suite.e.POST(path).
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("clicks", 5)
		resp.HasValue("keys", 2)
		resp.HasValue("failed", 0)
	})
}

func (suite *HandlersTestSuite) TestRedirect() {
	const path = "/%s"

	suite.Run("link not found", func() {
		suite.linkUseCaseMock.On("ResolveShortKey", mock.Anything, "abc").Once().Return(nil, entity.ErrLinkNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc")).
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusNotFound)
	})

	suite.Run("success", func() {
		suite.linkUseCaseMock.On("ResolveShortKey", mock.Anything, "abc").Once().Return(suite.link(), nil)

		suite.e.GET(fmt.Sprintf(path, "abc")).
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com/page")
	})
}

func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
