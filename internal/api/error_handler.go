package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
// Error は機械可読な安定タグ、Message は人間向けの説明
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
//
// ドメインエラー（apperror.Error）は種別タグごとの固定ステータスに
// 写像する。タグはクライアント互換のため変更しないこと。
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code    = http.StatusInternalServerError
		tag     = string(apperror.KindInternal)
		field   = ""
		message = "内部サーバーエラー"
	)

	var ae *apperror.Error
	if errors.As(err, &ae) {
		code = apperror.HTTPStatus(ae.Kind)
		tag = string(ae.Kind)
		field = ae.Field
		message = ae.Message
	} else if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		tag = http.StatusText(code)
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	// JSONレスポンスを返す
	if err := c.JSON(code, ErrorResponse{
		Error:   tag,
		Field:   field,
		Message: message,
		Code:    code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
