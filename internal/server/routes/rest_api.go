package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/usecase"
)

func RegisterRestAPI(injector *do.Injector, e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	g.GET("/deployments", func(c echo.Context) error {
		limit, err := queryInt(c, "limit", usecase.DefaultDeploymentsLimit)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, err)
		}
		usecase := do.MustInvoke[usecase.ListDeploymentsUsecase](injector)
		deps, err := usecase.Execute(c.Request().Context(), limit)
		if err != nil {
			return c.NoContent(http.StatusInternalServerError)
		}

		type response struct {
			Deployments []*entity.Deployment `json:"deployments"`
		}

		result := &response{Deployments: make([]*entity.Deployment, len(deps))}
		copy(result.Deployments, deps)

		return c.JSON(http.StatusOK, result)
	})
	g.GET("/deployments/active", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.GetActiveDeploymentUsecase](injector)
		dep, err := usecase.Execute(c.Request().Context())
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, dep)
	})
	g.GET("/deployments/:id", func(c echo.Context) error {
		id, err := strconv.ParseUint(c.Param("id"), 10, 0)
		if err != nil {
			return c.NoContent(http.StatusNotFound)
		}
		usecase := do.MustInvoke[usecase.GetDeploymentUsecase](injector)
		dep, err := usecase.Execute(c.Request().Context(), uint(id))
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, dep)
	})
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Join(entity.ErrInvalid, errors.New(name+" must be an integer"))
	}
	return n, nil
}

func errorJSON(c echo.Context, code int, err error) error {
	type response struct {
		Error string `json:"error"`
	}
	return c.JSON(code, &response{Error: err.Error()})
}
