package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

type PeriodHandler struct {
	reservations ReservationServiceInterface
	openings     OpeningServiceInterface
}

func NewPeriodHandler(rs ReservationServiceInterface, os OpeningServiceInterface) *PeriodHandler {
	return &PeriodHandler{reservations: rs, openings: os}
}

type PeriodDayRequest struct {
	Weekday int    `json:"weekday" validate:"min=0,max=6"`
	Opens   string `json:"opens,omitempty" example:"08:00"`
	Closes  string `json:"closes,omitempty" example:"16:00"`
	Closed  bool   `json:"closed,omitempty"`
}

type PeriodRequest struct {
	ResourceID *string            `json:"resource,omitempty"`
	UnitID     *string            `json:"unit,omitempty"`
	Start      string             `json:"start" validate:"required" example:"2026-01-01"`
	End        string             `json:"end" validate:"required" example:"2026-12-31"`
	Name       string             `json:"name,omitempty"`
	Closed     bool               `json:"closed,omitempty"`
	Days       []PeriodDayRequest `json:"days"`
}

type PeriodDayResponse struct {
	Weekday int    `json:"weekday"`
	Opens   string `json:"opens,omitempty"`
	Closes  string `json:"closes,omitempty"`
	Closed  bool   `json:"closed"`
}

type PeriodResponse struct {
	ID         string              `json:"id"`
	ResourceID *string             `json:"resource,omitempty"`
	UnitID     *string             `json:"unit,omitempty"`
	Start      string              `json:"start"`
	End        string              `json:"end"`
	Name       string              `json:"name,omitempty"`
	Closed     bool                `json:"closed"`
	Days       []PeriodDayResponse `json:"days"`
}

func (req *PeriodRequest) toPeriod(id string) (*opening.Period, error) {
	start, err := timeutil.ParseDate(req.Start)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "startの形式が不正です")
	}
	end, err := timeutil.ParseDate(req.End)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "endの形式が不正です")
	}
	p := &opening.Period{
		ID:         id,
		ResourceID: req.ResourceID,
		UnitID:     req.UnitID,
		Start:      start,
		End:        end,
		Name:       req.Name,
		Closed:     req.Closed,
	}
	for _, d := range req.Days {
		day := opening.Day{Weekday: d.Weekday, Closed: d.Closed}
		if d.Opens != "" {
			td, err := timeutil.ParseTimeOfDay(d.Opens)
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusBadRequest, "opensの形式が不正です")
			}
			day.Opens = &td
		}
		if d.Closes != "" {
			td, err := timeutil.ParseTimeOfDay(d.Closes)
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusBadRequest, "closesの形式が不正です")
			}
			day.Closes = &td
		}
		p.Days = append(p.Days, day)
	}
	return p, nil
}

func toPeriodResponse(p *opening.Period) PeriodResponse {
	resp := PeriodResponse{
		ID:         p.ID,
		ResourceID: p.ResourceID,
		UnitID:     p.UnitID,
		Start:      p.Start.String(),
		End:        p.End.String(),
		Name:       p.Name,
		Closed:     p.Closed,
	}
	for _, d := range p.Days {
		day := PeriodDayResponse{Weekday: d.Weekday, Closed: d.Closed}
		if d.Opens != nil {
			day.Opens = d.Opens.String()
		}
		if d.Closes != nil {
			day.Closes = d.Closes.String()
		}
		resp.Days = append(resp.Days, day)
	}
	return resp
}

// Create godoc
// @Summary 開館期間を作成
// @Description 開館期間を作成し、影響リソースの開館インターバルを再計算します
// @Tags periods
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body PeriodRequest true "期間情報"
// @Success 201 {object} PeriodResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "日付が既存期間と重複"
// @Router /periods [post]
func (h *PeriodHandler) Create(c echo.Context) error {
	if c.Request().Header.Get("X-User-ID") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	checker, err := h.reservations.LoadChecker(c.Request().Context(), c.Request().Header.Get("X-User-ID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "認可情報の取得に失敗しました")
	}
	var req PeriodRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := req.toPeriod("")
	if err != nil {
		return err
	}
	if err := h.openings.CreatePeriod(c.Request().Context(), checker, p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toPeriodResponse(p))
}

// Update godoc
// @Summary 開館期間を更新
// @Description 期間を置き換え、影響リソースを再計算します
// @Tags periods
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "期間ID"
// @Param request body PeriodRequest true "期間情報"
// @Success 200 {object} PeriodResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /periods/{id} [put]
func (h *PeriodHandler) Update(c echo.Context) error {
	if c.Request().Header.Get("X-User-ID") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	checker, err := h.reservations.LoadChecker(c.Request().Context(), c.Request().Header.Get("X-User-ID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "認可情報の取得に失敗しました")
	}
	var req PeriodRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := req.toPeriod(c.Param("id"))
	if err != nil {
		return err
	}
	if err := h.openings.UpdatePeriod(c.Request().Context(), checker, p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPeriodResponse(p))
}

// Delete godoc
// @Summary 開館期間を削除
// @Description 期間を削除し、影響リソースを再計算します
// @Tags periods
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "期間ID"
// @Success 204
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /periods/{id} [delete]
func (h *PeriodHandler) Delete(c echo.Context) error {
	if c.Request().Header.Get("X-User-ID") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	checker, err := h.reservations.LoadChecker(c.Request().Context(), c.Request().Header.Get("X-User-ID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "認可情報の取得に失敗しました")
	}
	if err := h.openings.DeletePeriod(c.Request().Context(), checker, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Recompute godoc
// @Summary 開館インターバルを再計算
// @Description リソースの開館インターバルを手動で再計算します（冪等）
// @Tags periods
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "リソースID"
// @Success 204
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /resources/{id}/recompute [post]
func (h *PeriodHandler) Recompute(c echo.Context) error {
	if c.Request().Header.Get("X-User-ID") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	checker, err := h.reservations.LoadChecker(c.Request().Context(), c.Request().Header.Get("X-User-ID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "認可情報の取得に失敗しました")
	}
	if err := h.openings.RequestRecompute(c.Request().Context(), checker, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListForResource godoc
// @Summary リソースの期間一覧を取得
// @Tags periods
// @Produce json
// @Param id path string true "リソースID"
// @Success 200 {array} PeriodResponse
// @Router /resources/{id}/periods [get]
func (h *PeriodHandler) ListForResource(c echo.Context) error {
	periods, err := h.openings.ListPeriods(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	resp := make([]PeriodResponse, len(periods))
	for i, p := range periods {
		resp[i] = toPeriodResponse(p)
	}
	return c.JSON(http.StatusOK, resp)
}
