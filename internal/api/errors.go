package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCodes gives each status the machine-readable code clients switch on.
var errorCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorised",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "read_only",
	http.StatusConflict:            "no_code",
	http.StatusUnprocessableEntity: "invalid_value",
	http.StatusServiceUnavailable:  "unavailable",
}

// accessoryStatuses maps accessory failures to statuses, first match wins.
var accessoryStatuses = []struct {
	err    error
	status int
}{
	{appliance.ErrNotFound, http.StatusNotFound},
	{appliance.ErrUnknownCharacteristic, http.StatusNotFound},
	{appliance.ErrReadOnly, http.StatusMethodNotAllowed},
	{appliance.ErrInvalidValue, http.StatusUnprocessableEntity},
	{appliance.ErrOutOfRange, http.StatusUnprocessableEntity},
	{appliance.ErrUnsupportedMode, http.StatusUnprocessableEntity},
	{appliance.ErrMissingCode, http.StatusConflict},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // The client may already have gone away
	json.NewEncoder(w).Encode(v)
}

// writeError sends an errorBody. Statuses without a dedicated code report
// internal_error.
func writeError(w http.ResponseWriter, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		code = "internal_error"
	}
	writeJSON(w, status, errorBody{Status: status, Code: code, Message: message})
}

func writeAccessoryError(w http.ResponseWriter, err error) {
	for _, m := range accessoryStatuses {
		if errors.Is(err, m.err) {
			writeError(w, m.status, err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
