package render

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/omni/permission-relay/db"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/sdkerrors"
)

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// WithStatus attaches an explicit http status to err.
func WithStatus(status int, err error) error {
	return &statusError{status: status, err: err}
}

func StatusOf(err error) int {
	var (
		statusErr  *statusError
		networkErr *sdkerrors.NetworkError
		chainErr   *sdkerrors.BlockchainError
	)
	switch {
	case errors.As(err, &statusErr):
		return statusErr.status
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &networkErr), errors.As(err, &chainErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	var (
		data []byte
		err  error
	)
	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		data, err = json.MarshalIndent(res, "", "  ")
	} else {
		data, err = json.Marshal(res)
	}
	if err != nil {
		Error(w, r, WithStatus(http.StatusInternalServerError, err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(append(data, '\n')); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Warn("failed to write response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	logger := logging.LoggerFromContext(r.Context()).WithError(err).WithField("http_status", status)
	if status >= http.StatusInternalServerError {
		logger.Error("request handling failed")
	} else {
		logger.Warn("request rejected")
	}
	JSON(w, r, status, errorResponse{Error: err.Error()})
}
