// Package responses defines the small set of API error kinds the HTTP
// surface distinguishes, each carrying its own status code.
package responses

import "net/http"

// APIError is satisfied by every error kind the webutil package knows
// how to render as a status code plus message.
type APIError interface {
	error
	StatusCode() int
}

// BadRequestError reports a malformed or invalid request body.
type BadRequestError struct{ Msg string }

func (e BadRequestError) Error() string   { return e.Msg }
func (e BadRequestError) StatusCode() int { return http.StatusBadRequest }

// UnauthorizedError reports a missing or invalid identity.
type UnauthorizedError struct{ Msg string }

func (e UnauthorizedError) Error() string   { return e.Msg }
func (e UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

// NotFoundError reports a resource that does not exist.
type NotFoundError struct{ Msg string }

func (e NotFoundError) Error() string   { return e.Msg }
func (e NotFoundError) StatusCode() int { return http.StatusNotFound }

// InternalServerError reports a server-side fault unrelated to the
// caller's input.
type InternalServerError struct{ Msg string }

func (e InternalServerError) Error() string   { return e.Msg }
func (e InternalServerError) StatusCode() int { return http.StatusInternalServerError }
