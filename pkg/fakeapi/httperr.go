package fakeapi

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrResponse is the error body returned by every endpoint.
type ErrResponse struct {
	HTTPStatusCode int `json:"-"`

	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(status int, message string) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: status,
		Code:           status,
		Message:        message,
	}
}

func ErrInvalidRequest(err error) render.Renderer {
	return errResponse(http.StatusBadRequest, err.Error())
}

func ErrUnprocessable(err error) render.Renderer {
	return errResponse(http.StatusUnprocessableEntity, err.Error())
}

func ErrUnauthorized(err error) render.Renderer {
	return errResponse(http.StatusUnauthorized, err.Error())
}

func ErrConflict(err error) render.Renderer {
	return errResponse(http.StatusConflict, err.Error())
}

// ErrInjected is returned for requests failed on purpose by a fault.
func ErrInjected(status int) render.Renderer {
	return errResponse(status, "injected fault")
}

var ErrNotFound = errResponse(http.StatusNotFound, "Not Found")
