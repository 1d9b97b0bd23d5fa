package commands

import "log/slog"

// logger is the structured logger commands use for operational events
// (render start/finish, job counts) that are not simply the command's
// own error return. Set once by main via SetLogger before Execute.
var logger = slog.Default()

// SetLogger installs the logger commands use for structured output.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
