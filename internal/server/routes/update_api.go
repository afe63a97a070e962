package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/usecase"
)

func RegisterUpdateAPI(injector *do.Injector, e *echo.Echo) {
	g := e.Group("/api/update")

	g.GET("/status", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.GetUpdateStatusUsecase](injector)
		status, err := usecase.Execute(c.Request().Context())
		if err != nil {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, status)
	})
	g.POST("", func(c echo.Context) error {
		type request struct {
			ExecuteRestart *bool `json:"execute_restart"`
		}
		var req request
		if err := c.Bind(&req); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		usecase := do.MustInvoke[usecase.RunUpdateUsecase](injector)
		result, err := usecase.Execute(c.Request().Context(), boolOr(req.ExecuteRestart, true))
		if err != nil {
			return mutationError(c, err)
		}
		return c.JSON(http.StatusOK, result)
	})
	g.POST("/rollback", func(c echo.Context) error {
		type request struct {
			Target         string `json:"target"`
			ExecuteRestart *bool  `json:"execute_restart"`
			Confirm        bool   `json:"confirm"`
		}
		var req request
		if err := c.Bind(&req); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		if !req.Confirm {
			return errorJSON(c, http.StatusBadRequest, errors.New("rollback must be confirmed with \"confirm\": true"))
		}

		usecase := do.MustInvoke[usecase.RollbackUsecase](injector)
		result, err := usecase.Execute(c.Request().Context(), req.Target, boolOr(req.ExecuteRestart, true))
		if err != nil {
			return mutationError(c, err)
		}
		return c.JSON(http.StatusOK, result)
	})
	g.GET("/log", func(c echo.Context) error {
		lines, err := queryInt(c, "lines", 0)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, err)
		}
		usecase := do.MustInvoke[usecase.ReadLogTailUsecase](injector)
		tail, err := usecase.Execute(c.Request().Context(), lines)
		if err != nil {
			return c.NoContent(http.StatusInternalServerError)
		}

		type response struct {
			Log string `json:"log"`
		}
		return c.JSON(http.StatusOK, &response{Log: tail})
	})
}

func mutationError(c echo.Context, err error) error {
	if errors.Is(err, entity.ErrBusy) {
		return errorJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusInternalServerError)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
