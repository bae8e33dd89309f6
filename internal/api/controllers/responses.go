package controllers

import (
	"errors"
	"net/http"

	"github.com/datallboy/mediaq/internal/domain"
	"github.com/labstack/echo/v5"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(c *echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidJob), errors.Is(err, domain.ErrUnknownRole):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	}
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
