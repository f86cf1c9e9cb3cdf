package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sadlil/gologger"
)

// Logger is the process log shared by the api and the worker. It writes to the console until SetLogger runs.
var Logger = gologger.GetLogger(gologger.CONSOLE, gologger.SimpleLog)

func SetLogger(fileLog string) {
	if fileLog == "" {
		Logger = gologger.GetLogger(gologger.CONSOLE, gologger.SimpleLog)
	} else {
		Logger = gologger.GetLogger(gologger.FILE, fileLog)
	}
	Logger.Info("Start program")
}

// accessLog writes one line per request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		line := fmt.Sprintf("%s %s %d %s %s", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start), c.ClientIP())
		if c.Writer.Status() >= 500 {
			Logger.Error(line)
			return
		}
		Logger.Info(line)
	}
}
