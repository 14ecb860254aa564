package errcode

import (
	"errors"
	"net/http"

	"txfix/pkg/analyzer"
	"txfix/pkg/diagnosis"
	"txfix/pkg/feebump"
	"txfix/pkg/mempool"
	"txfix/pkg/service"
	"txfix/pkg/types"
)

// Error codes reported by the JSON surfaces.
const (
	MissingRawTxHex      = "MISSING_RAW_TX_HEX"
	ChangeOutputTooSmall = "CHANGE_OUTPUT_TOO_SMALL"
	FeeNotHigher         = "FEE_NOT_HIGHER"
	ChangeOutputNotFound = "CHANGE_OUTPUT_NOT_FOUND"
	InsufficientValue    = "INSUFFICIENT_VALUE"
	ScriptParseError     = "SCRIPT_PARSE_ERROR"
	DataFetchFailure     = "DATA_FETCH_FAILURE"
	InvalidRequest       = "INVALID_REQUEST"
	NotFound             = "NOT_FOUND"
	BroadcastRejected    = "BROADCAST_REJECTED"
	Internal             = "INTERNAL_ERROR"
)

type mapping struct {
	target error
	code   string
	status int
}

// Order matters: a script parse failure is reported as such even when a
// builder wraps it further.
var mappings = []mapping{
	{analyzer.ErrScriptParse, ScriptParseError, http.StatusUnprocessableEntity},
	{feebump.ErrMissingRawTxHex, MissingRawTxHex, http.StatusUnprocessableEntity},
	{feebump.ErrChangeOutputTooSmall, ChangeOutputTooSmall, http.StatusUnprocessableEntity},
	{feebump.ErrFeeNotHigher, FeeNotHigher, http.StatusUnprocessableEntity},
	{feebump.ErrChangeOutputNotFound, ChangeOutputNotFound, http.StatusUnprocessableEntity},
	{feebump.ErrInsufficientValue, InsufficientValue, http.StatusUnprocessableEntity},
	{feebump.ErrInvalidParams, InvalidRequest, http.StatusBadRequest},
	{service.ErrBroadcastUnsupported, InvalidRequest, http.StatusBadRequest},
}

// Code returns the error code for err.
func Code(err error) string {
	code, _ := Lookup(err)
	return code
}

// Lookup returns the error code and HTTP status for err.
func Lookup(err error) (string, int) {
	if err == nil {
		return "", http.StatusOK
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.code, m.status
		}
	}
	if errors.Is(err, diagnosis.ErrDataFetch) {
		if mempool.IsNotFound(err) || errors.Is(err, mempool.ErrNotInSnapshot) {
			return NotFound, http.StatusNotFound
		}
		return DataFetchFailure, http.StatusBadGateway
	}
	var se *mempool.StatusError
	if errors.As(err, &se) {
		if se.Method == "broadcast" {
			return BroadcastRejected, http.StatusBadRequest
		}
		if se.StatusCode == http.StatusNotFound {
			return NotFound, http.StatusNotFound
		}
		return DataFetchFailure, http.StatusBadGateway
	}
	return Internal, http.StatusInternalServerError
}

// Info converts err to the error body of a JSON response.
func Info(err error) types.ErrorInfo {
	return types.ErrorInfo{Code: Code(err), Message: err.Error()}
}
