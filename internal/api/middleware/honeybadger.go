package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/sirupsen/logrus"

	"github.com/bassista/go_devwatch/internal/report"
)

// HoneybadgerMiddleware reports panics and error responses through rep.
// A panic is reported and re-raised for gin.Recovery. 404s are not reported.
// With a disabled reporter it only calls the next handler.
func HoneybadgerMiddleware(rep *report.Reporter, logger *logrus.Logger) gin.HandlerFunc {
	if !rep.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rep.Notify(describe(c, "Panic"), c.Request, requestContext(c, honeybadger.Context{"stack": string(debug.Stack())}),
				honeybadger.Tags{"panic", "http"})
			logger.Error("Recovered from panic, notified Honeybadger: ", rec)
			panic(rec)
		}()

		c.Next()

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			rep.Notify(describe(c, fmt.Sprintf("Error: HTTP %d", status)), c.Request, requestContext(c, nil), honeybadger.Tags{"5XX", "http"})
		case status >= http.StatusBadRequest && status != http.StatusNotFound:
			rep.Notify(describe(c, fmt.Sprintf("Warning: HTTP %d", status)), requestContext(c, nil), honeybadger.Tags{"4XX", "http"})
		default:
			return
		}
		logger.Warnf("Honeybadger reported HTTP %d for %s %s", status, c.Request.Method, c.Request.URL.Path)
	}
}

func describe(c *gin.Context, prefix string) string {
	return fmt.Sprintf("%s: %s %s", prefix, c.Request.Method, c.Request.URL.Path)
}

// requestContext adds the device addressed by the route, if any.
func requestContext(c *gin.Context, ctx honeybadger.Context) honeybadger.Context {
	if ctx == nil {
		ctx = honeybadger.Context{}
	}
	if name := c.Param("name"); name != "" {
		ctx["device"] = name
	}
	return ctx
}
