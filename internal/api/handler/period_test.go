package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// MockOpeningService はOpeningServiceInterfaceのモック
type MockOpeningService struct {
	mock.Mock
}

func (m *MockOpeningService) CreatePeriod(ctx context.Context, checker *permission.Checker, p *opening.Period) error {
	args := m.Called(ctx, checker, p)
	return args.Error(0)
}

func (m *MockOpeningService) UpdatePeriod(ctx context.Context, checker *permission.Checker, p *opening.Period) error {
	args := m.Called(ctx, checker, p)
	return args.Error(0)
}

func (m *MockOpeningService) DeletePeriod(ctx context.Context, checker *permission.Checker, id string) error {
	args := m.Called(ctx, checker, id)
	return args.Error(0)
}

func (m *MockOpeningService) ListPeriods(ctx context.Context, resourceID string) ([]*opening.Period, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*opening.Period), args.Error(1)
}

func (m *MockOpeningService) ListIntervals(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, error) {
	args := m.Called(ctx, resourceID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]opening.Interval), args.Error(1)
}

func (m *MockOpeningService) RecomputeResource(ctx context.Context, resourceID string) error {
	args := m.Called(ctx, resourceID)
	return args.Error(0)
}

func (m *MockOpeningService) RequestRecompute(ctx context.Context, checker *permission.Checker, resourceID string) error {
	args := m.Called(ctx, checker, resourceID)
	return args.Error(0)
}

func TestPeriodHandler_Create(t *testing.T) {
	e := NewTestEcho()

	validBody := `{
		"resource": "res-1",
		"start": "2026-07-01",
		"end": "2026-08-31",
		"name": "夏季開館",
		"days": [{"weekday": 0, "opens": "08:00", "closes": "18:00"}]
	}`

	t.Run("正常に期間を作成できる", func(t *testing.T) {
		mockReservations := new(MockReservationService)
		mockOpenings := new(MockOpeningService)
		checker := testChecker("admin-1")
		mockReservations.On("LoadChecker", mock.Anything, "admin-1").Return(checker, nil)
		mockOpenings.On("CreatePeriod", mock.Anything, checker, mock.MatchedBy(func(p *opening.Period) bool {
			return p.ResourceID != nil && *p.ResourceID == "res-1" &&
				p.Start.String() == "2026-07-01" &&
				len(p.Days) == 1 && p.Days[0].Opens != nil
		})).Return(nil)

		handler := NewPeriodHandler(mockReservations, mockOpenings)
		req := httptest.NewRequest(http.MethodPost, "/periods", strings.NewReader(validBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-User-ID", "admin-1")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, handler.Create(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp PeriodResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "2026-07-01", resp.Start)
		assert.Equal(t, "08:00", resp.Days[0].Opens)

		mockOpenings.AssertExpectations(t)
	})

	t.Run("ユーザーIDがない場合401", func(t *testing.T) {
		handler := NewPeriodHandler(new(MockReservationService), new(MockOpeningService))
		req := httptest.NewRequest(http.MethodPost, "/periods", strings.NewReader(validBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("日付形式の不正は400", func(t *testing.T) {
		mockReservations := new(MockReservationService)
		mockReservations.On("LoadChecker", mock.Anything, "admin-1").Return(testChecker("admin-1"), nil)
		handler := NewPeriodHandler(mockReservations, new(MockOpeningService))

		body := `{"resource": "res-1", "start": "2026/07/01", "end": "2026-08-31"}`
		req := httptest.NewRequest(http.MethodPost, "/periods", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-User-ID", "admin-1")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	})

	t.Run("権限エラーはそのまま返す", func(t *testing.T) {
		mockReservations := new(MockReservationService)
		mockOpenings := new(MockOpeningService)
		checker := testChecker("user-1")
		mockReservations.On("LoadChecker", mock.Anything, "user-1").Return(checker, nil)
		mockOpenings.On("CreatePeriod", mock.Anything, checker, mock.Anything).
			Return(apperror.New(apperror.KindPermissionDenied, "開館期間を管理する権限がありません"))

		handler := NewPeriodHandler(mockReservations, mockOpenings)
		req := httptest.NewRequest(http.MethodPost, "/periods", strings.NewReader(validBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		assert.True(t, apperror.Is(err, apperror.KindPermissionDenied))
	})
}

func TestPeriodHandler_Update(t *testing.T) {
	e := NewTestEcho()

	mockReservations := new(MockReservationService)
	mockOpenings := new(MockOpeningService)
	checker := testChecker("admin-1")
	mockReservations.On("LoadChecker", mock.Anything, "admin-1").Return(checker, nil)
	mockOpenings.On("UpdatePeriod", mock.Anything, checker, mock.MatchedBy(func(p *opening.Period) bool {
		return p.ID == "per-1"
	})).Return(nil)

	handler := NewPeriodHandler(mockReservations, mockOpenings)
	body := `{"resource": "res-1", "start": "2026-07-01", "end": "2026-08-31"}`
	req := httptest.NewRequest(http.MethodPut, "/periods/per-1", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-User-ID", "admin-1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("per-1")

	require.NoError(t, handler.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	mockOpenings.AssertExpectations(t)
}

func TestPeriodHandler_Delete(t *testing.T) {
	e := NewTestEcho()

	mockReservations := new(MockReservationService)
	mockOpenings := new(MockOpeningService)
	checker := testChecker("admin-1")
	mockReservations.On("LoadChecker", mock.Anything, "admin-1").Return(checker, nil)
	mockOpenings.On("DeletePeriod", mock.Anything, checker, "per-1").Return(nil)

	handler := NewPeriodHandler(mockReservations, mockOpenings)
	req := httptest.NewRequest(http.MethodDelete, "/periods/per-1", nil)
	req.Header.Set("X-User-ID", "admin-1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("per-1")

	require.NoError(t, handler.Delete(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	mockOpenings.AssertExpectations(t)
}

func TestPeriodHandler_Recompute(t *testing.T) {
	e := NewTestEcho()

	t.Run("管理者は再計算を起動できる", func(t *testing.T) {
		mockReservations := new(MockReservationService)
		mockOpenings := new(MockOpeningService)
		checker := testChecker("admin-1")
		mockReservations.On("LoadChecker", mock.Anything, "admin-1").Return(checker, nil)
		mockOpenings.On("RequestRecompute", mock.Anything, checker, "res-1").Return(nil)

		handler := NewPeriodHandler(mockReservations, mockOpenings)
		req := httptest.NewRequest(http.MethodPost, "/resources/res-1/recompute", nil)
		req.Header.Set("X-User-ID", "admin-1")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-1")

		require.NoError(t, handler.Recompute(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		mockOpenings.AssertExpectations(t)
	})

	t.Run("権限なしはエラーを引き継ぐ", func(t *testing.T) {
		mockReservations := new(MockReservationService)
		mockOpenings := new(MockOpeningService)
		checker := testChecker("user-1")
		mockReservations.On("LoadChecker", mock.Anything, "user-1").Return(checker, nil)
		mockOpenings.On("RequestRecompute", mock.Anything, checker, "res-1").
			Return(apperror.New(apperror.KindPermissionDenied, "開館時間を再計算する権限がありません"))

		handler := NewPeriodHandler(mockReservations, mockOpenings)
		req := httptest.NewRequest(http.MethodPost, "/resources/res-1/recompute", nil)
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-1")

		err := handler.Recompute(c)
		assert.True(t, apperror.Is(err, apperror.KindPermissionDenied))
	})

	t.Run("ユーザーIDがない場合401", func(t *testing.T) {
		handler := NewPeriodHandler(new(MockReservationService), new(MockOpeningService))
		req := httptest.NewRequest(http.MethodPost, "/resources/res-1/recompute", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Recompute(c)
		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})
}

func TestPeriodHandler_ListForResource(t *testing.T) {
	e := NewTestEcho()

	resID := "res-1"
	opens := timeutil.TimeOfDay{Hour: 8}
	closes := timeutil.TimeOfDay{Hour: 18}
	periods := []*opening.Period{{
		ID:         "per-1",
		ResourceID: &resID,
		Start:      timeutil.Date{Year: 2026, Month: 7, Day: 1},
		End:        timeutil.Date{Year: 2026, Month: 8, Day: 31},
		Days:       []opening.Day{{Weekday: 0, Opens: &opens, Closes: &closes}},
	}}

	mockOpenings := new(MockOpeningService)
	mockOpenings.On("ListPeriods", mock.Anything, "res-1").Return(periods, nil)

	handler := NewPeriodHandler(new(MockReservationService), mockOpenings)
	req := httptest.NewRequest(http.MethodGet, "/resources/res-1/periods", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("res-1")

	require.NoError(t, handler.ListForResource(c))

	var resp []PeriodResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "per-1", resp[0].ID)
	assert.Equal(t, "18:00", resp[0].Days[0].Closes)
}
