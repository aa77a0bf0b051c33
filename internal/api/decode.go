package api

import (
	"encoding/json"
	"io"

	"github.com/labstack/echo/v4"
)

// decodeBody reads the request body once and unmarshals it into every
// target. Readings carry their own decoder, so a request that mixes
// readings with other fields is decoded into both halves separately.
func decodeBody(c echo.Context, targets ...any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest("failed to read request body", err)
	}
	if len(body) == 0 {
		return badRequest("request body is required", nil)
	}
	for _, t := range targets {
		if err := json.Unmarshal(body, t); err != nil {
			return badRequest("invalid JSON body", err)
		}
	}
	return nil
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty.
func decodeOptionalBody(c echo.Context, target any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest("failed to read request body", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return badRequest("invalid JSON body", err)
	}
	return nil
}
