package api

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validatedBody struct {
	Name string `validate:"required"`
}

func TestCustomValidator_Validate(t *testing.T) {
	cv := NewValidator()

	t.Run("正常な入力", func(t *testing.T) {
		assert.NoError(t, cv.Validate(validatedBody{Name: "会議室A"}))
	})

	t.Run("必須フィールド欠落は400", func(t *testing.T) {
		err := cv.Validate(validatedBody{})

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, he.Code)
		assert.Contains(t, he.Message, "リクエストの入力値が不正です")
	})
}
