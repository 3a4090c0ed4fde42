package main

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/raven-go"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type ErrorHandlerFunc func(recovery interface{}, c *gin.Context)

// ErrorHandler runs the handler chain after the request, catching
// panics and collected gin errors.
func ErrorHandler(handlers ...ErrorHandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			for _, handler := range handlers {
				handler(rec, c)
			}

			if rec != nil || len(c.Errors) > 0 {
				c.Abort()
			}
		}()

		c.Next()
	}
}

// ErrorResponseHandler writes the failure envelope for errors nothing
// else responded to. Handlers that already wrote a response are left
// alone.
func ErrorResponseHandler() ErrorHandlerFunc {
	return func(recovery interface{}, c *gin.Context) {
		if c.Writer.Written() {
			return
		}
		if recovery == nil && len(c.Errors) == 0 {
			return
		}

		message := "Something went wrong"
		if public := c.Errors.ByType(gin.ErrorTypePublic); len(public) > 0 {
			message = public[0].Error()
		}

		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: message})
	}
}

// ErrorCaptureHandler ships panics and collected errors to Sentry.
func ErrorCaptureHandler(client *raven.Client) ErrorHandlerFunc {
	return func(recovery interface{}, c *gin.Context) {
		tags := map[string]string{
			"endpoint": c.Request.RequestURI,
		}

		if recovery != nil {
			stacktrace := raven.NewStacktrace(4, 3, nil)
			recStr := fmt.Sprint(recovery)
			err := errors.New(recStr)
			go client.CaptureMessageAndWait(
				recStr,
				tags,
				raven.NewException(err, stacktrace),
				raven.NewHttp(c.Request),
			)
		}

		for _, err := range c.Errors {
			go client.CaptureErrorAndWait(err.Err, tags)
		}
	}
}

func PanicLogger() ErrorHandlerFunc {
	return func(recovery interface{}, c *gin.Context) {
		if recovery != nil {
			logger.Error(recovery)
			debug.PrintStack()
		}
	}
}

func ErrorLogger() ErrorHandlerFunc {
	return func(recovery interface{}, c *gin.Context) {
		for _, err := range c.Errors {
			logger.Error(err.Err)
		}
	}
}
