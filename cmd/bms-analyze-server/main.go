package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ericfowler-dev/bms-log-analyzer/analysis"
	"github.com/ericfowler-dev/bms-log-analyzer/config"
	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

var version = "<not set>"
var log = logrus.New()

type Args struct {
	Port     int    `arg:"-p, --port" default:"8080" help:"Port to serve the analysis API on."`
	Config   string `arg:"-c, --config" help:"Optional TOML settings file with threshold overrides."`
	LogLevel string `arg:"-l, --loglevel" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

// customFormatter defines a new logrus formatter.
type customFormatter struct{}

// Format builds the log message string from the log entry.
func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

// analyzeRequest is the API's input document: sheet name to decoded rows.
type analyzeRequest struct {
	Sheets map[string][]map[string]any `json:"sheets" binding:"required"`
	Day    string                      `json:"day"`
}

type analyzeResponse struct {
	*analysis.Result
	Summary *analysis.SessionStats `json:"summary"`
}

func newRouter(analyzer *analysis.Analyzer) *gin.Engine {
	router := gin.Default()

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	})

	router.POST("/api/analyze", func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sheets := make(map[string][]rowset.Row, len(req.Sheets))
		for name, records := range req.Sheets {
			sheets[name] = rowset.FromMaps(records)
		}

		result, err := analyzer.Analyze(sheets)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, analyzeResponse{
			Result:  result,
			Summary: analysis.ComputeSessionStats(result.TimeSeries, result.FaultEvents, result.Anomalies, req.Day),
		})
	})

	return router
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)
	analysis.SetLogger(log)

	log.Infof("Running version: %s", version)

	settings, err := config.Load(args.Config)
	if err != nil {
		return err
	}

	router := newRouter(settings.Analyzer())
	log.Infof("Serving analysis API on port %d", args.Port)
	return router.Run(fmt.Sprintf(":%d", args.Port))
}
