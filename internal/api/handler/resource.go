package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-space-reservation/internal/application"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

type ResourceHandler struct {
	reservations ReservationServiceInterface
	availability AvailabilityServiceInterface
	resources    ResourceReaderInterface
}

func NewResourceHandler(rs ReservationServiceInterface, av AvailabilityServiceInterface, rr ResourceReaderInterface) *ResourceHandler {
	return &ResourceHandler{reservations: rs, availability: av, resources: rr}
}

type ResourceResponse struct {
	ID                     string            `json:"id"`
	UnitID                 string            `json:"unit"`
	Type                   string            `json:"type"`
	Name                   map[string]string `json:"name"`
	Reservable             bool              `json:"reservable"`
	Public                 bool              `json:"public"`
	MinPeriodMinutes       int               `json:"min_period_minutes"`
	MaxPeriodMinutes       *int              `json:"max_period_minutes,omitempty"`
	SlotSizeMinutes        int               `json:"slot_size_minutes"`
	MaxReservationsPerUser *int              `json:"max_reservations_per_user,omitempty"`
	NeedManualConfirmation bool              `json:"need_manual_confirmation"`
	AccessCodeType         string            `json:"access_code_type"`
	Authentication         string            `json:"authentication"`
	MinPrice               *int              `json:"min_price,omitempty"`
	MaxPrice               *int              `json:"max_price,omitempty"`
}

type DayOpeningResponse struct {
	Date   string     `json:"date"`
	Opens  *time.Time `json:"opens"`
	Closes *time.Time `json:"closes"`
}

type FreeIntervalResponse struct {
	Starts time.Time `json:"starts"`
	Ends   time.Time `json:"ends"`
}

type ResourceDetailResponse struct {
	ResourceResponse
	Reservable     bool                   `json:"reservable_by_actor"`
	OpeningHours   []DayOpeningResponse   `json:"opening_hours"`
	AvailableHours []FreeIntervalResponse `json:"available_hours"`
}

func toResourceResponse(res *resource.Resource) ResourceResponse {
	resp := ResourceResponse{
		ID:                     res.ID,
		UnitID:                 res.UnitID,
		Type:                   string(res.Type),
		Name:                   res.Name,
		Reservable:             res.Reservable,
		Public:                 res.Public,
		MinPeriodMinutes:       int(res.MinPeriod.Minutes()),
		SlotSizeMinutes:        int(res.SlotSize.Minutes()),
		MaxReservationsPerUser: res.MaxReservationsPerUser,
		NeedManualConfirmation: res.NeedManualConfirmation,
		AccessCodeType:         string(res.AccessCodeType),
		Authentication:         string(res.Authentication),
		MinPrice:               res.MinPrice,
		MaxPrice:               res.MaxPrice,
	}
	if res.MaxPeriod != nil {
		m := int(res.MaxPeriod.Minutes())
		resp.MaxPeriodMinutes = &m
	}
	return resp
}

// List godoc
// @Summary リソース一覧を取得
// @Description 公開リソースの一覧を返します
// @Tags resources
// @Produce json
// @Param limit query int false "取得件数" default(50)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ResourceResponse
// @Router /resources [get]
func (h *ResourceHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	resources, err := h.resources.List(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]ResourceResponse, len(resources))
	for i, res := range resources {
		resp[i] = toResourceResponse(res)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetByID godoc
// @Summary リソース詳細を取得
// @Description 日付範囲の開館時間と空き時間を含むリソース詳細を返します
// @Tags resources
// @Produce json
// @Param id path string true "リソースID"
// @Param start query string false "範囲開始日（YYYY-MM-DD、既定は今日）"
// @Param end query string false "範囲終了日（YYYY-MM-DD、既定はstart）"
// @Param duration query int false "最小空き時間（分）"
// @Success 200 {object} ResourceDetailResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /resources/{id} [get]
func (h *ResourceHandler) GetByID(c echo.Context) error {
	checker, err := h.reservations.LoadChecker(c.Request().Context(), c.Request().Header.Get("X-User-ID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "認可情報の取得に失敗しました")
	}

	q := application.AvailabilityQuery{ResourceID: c.Param("id")}
	if startParam := c.QueryParam("start"); startParam != "" {
		q.From, err = timeutil.ParseDate(startParam)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "startの形式が不正です")
		}
	} else {
		q.From = timeutil.DateOf(time.Now(), time.UTC)
	}
	if endParam := c.QueryParam("end"); endParam != "" {
		q.To, err = timeutil.ParseDate(endParam)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "endの形式が不正です")
		}
	} else {
		q.To = q.From
	}
	if durParam := c.QueryParam("duration"); durParam != "" {
		minutes, err := strconv.Atoi(durParam)
		if err != nil || minutes < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "durationの形式が不正です")
		}
		q.MinDuration = time.Duration(minutes) * time.Minute
	}

	av, err := h.availability.GetResourceAvailability(c.Request().Context(), checker, q)
	if err != nil {
		return err
	}

	resp := ResourceDetailResponse{
		ResourceResponse: toResourceResponse(av.Resource),
		Reservable:       av.Reservable,
	}
	for _, day := range av.OpeningHours {
		resp.OpeningHours = append(resp.OpeningHours, DayOpeningResponse{
			Date:   day.Date.String(),
			Opens:  day.Opens,
			Closes: day.Closes,
		})
	}
	for _, iv := range av.AvailableHours {
		resp.AvailableHours = append(resp.AvailableHours, FreeIntervalResponse{Starts: iv.Start, Ends: iv.End})
	}
	return c.JSON(http.StatusOK, resp)
}
