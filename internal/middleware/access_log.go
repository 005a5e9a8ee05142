package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const redacted = "REDACTED"

// AccessLog 记录每个请求的访问日志，日志里的 access_token 查询参数会被替换掉。
func AccessLog(logger chimw.LoggerInterface) func(http.Handler) http.Handler {
	return chimw.RequestLogger(redactingFormatter{
		next: &chimw.DefaultLogFormatter{Logger: logger, NoColor: true},
	})
}

type redactingFormatter struct {
	next chimw.LogFormatter
}

func (f redactingFormatter) NewLogEntry(r *http.Request) chimw.LogEntry {
	return f.next.NewLogEntry(redactToken(r))
}

// redactToken 返回一个只用于打日志的请求副本，原请求不变
func redactToken(r *http.Request) *http.Request {
	query := r.URL.Query()
	if _, ok := query[tokenParam]; !ok {
		return r
	}
	query.Set(tokenParam, redacted)

	u := *r.URL
	u.RawQuery = query.Encode()
	clone := r.WithContext(r.Context())
	clone.URL = &u
	clone.RequestURI = u.RequestURI()
	return clone
}
