package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// uintParam parses a numeric path parameter
func uintParam(c echo.Context, name string) (uint, error) {
	val, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(val), nil
}

// pageParams parses pagination query parameters with sane defaults
func pageParams(c echo.Context) (page, pageSize int) {
	page = 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	pageSize = 20
	if ps, err := strconv.Atoi(c.QueryParam("page_size")); err == nil && ps > 0 && ps <= 100 {
		pageSize = ps
	}
	return page, pageSize
}
