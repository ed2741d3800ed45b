package utils

import (
	"io"
	"log/slog"
)

// CloseWithLog closes the given closer and logs a warning when the close
// fails. It is meant for defer statements on HTTP response bodies where a
// close error must not override the primary error of the surrounding
// function.
func CloseWithLog(closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("failed to close resource", "error", err.Error())
	}
}
