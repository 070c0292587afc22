package handler

import (
	"net/http"

	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/labstack/echo/v4"
)

// ServiceResponse 统一响应结构
type ServiceResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, ServiceResponse{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func failure(c echo.Context, status int, message string) error {
	return c.JSON(status, ServiceResponse{
		Code:    status,
		Message: message,
	})
}

// failureFromError 按编排错误码选择HTTP状态
func failureFromError(c echo.Context, err error) error {
	return failure(c, statusFromError(err), err.Error())
}

func statusFromError(err error) int {
	switch {
	case lifecycle.IsCode(err, lifecycle.ErrServiceNotFound):
		return http.StatusNotFound
	case lifecycle.IsCode(err, lifecycle.ErrValidation):
		return http.StatusBadRequest
	case lifecycle.IsCode(err, lifecycle.ErrDependencyUnavailable),
		lifecycle.IsCode(err, lifecycle.ErrConfiguration),
		lifecycle.IsCode(err, lifecycle.ErrRestartLimitExceeded):
		return http.StatusConflict
	case lifecycle.IsCode(err, lifecycle.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
