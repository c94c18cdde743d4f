package logger

import (
	"regexp"
	"strings"
)

var passwordParam = regexp.MustCompile(`(?i)(password|pwd)=([^;]*)`)

// RedactConnectionString masks the password/pwd segment of a SQL Server
// connection string for safe logging.
// "Server=x;Database=y;Password=hunter2;" → "Server=x;Database=y;Password=***;"
func RedactConnectionString(cs string) string {
	if !strings.Contains(strings.ToLower(cs), "password=") && !strings.Contains(strings.ToLower(cs), "pwd=") {
		return cs
	}
	return passwordParam.ReplaceAllString(cs, "$1=***")
}
