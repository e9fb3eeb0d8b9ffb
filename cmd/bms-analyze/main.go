package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/ericfowler-dev/bms-log-analyzer/analysis"
	"github.com/ericfowler-dev/bms-log-analyzer/config"
	"github.com/ericfowler-dev/bms-log-analyzer/csvsheets"
)

var version = "<not set>"
var log = logrus.New()

type Args struct {
	Dir      string `arg:"positional,required" help:"Directory of exported CSV sheets to analyze."`
	Config   string `arg:"-c, --config" help:"Optional TOML settings file with threshold overrides."`
	Out      string `arg:"-o, --out" help:"Write the JSON report here instead of stdout."`
	Day      string `arg:"--day" help:"Restrict the session summary to one day (YYYY-MM-DD)."`
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

// report is the CLI's output document: the analysis result plus the
// session rollup.
type report struct {
	*analysis.Result
	Summary *analysis.SessionStats `json:"summary"`
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

	sheets, err := csvsheets.LoadDir(args.Dir)
	if err != nil {
		return err
	}
	log.Infof("Loaded %d sheets from %s", len(sheets), args.Dir)

	result, err := settings.Analyzer().Analyze(sheets)
	if err != nil {
		return err
	}
	log.Infof("Fused %d samples, %d fault events, %d anomalies",
		len(result.TimeSeries), len(result.FaultEvents), len(result.Anomalies))

	out := report{
		Result:  result,
		Summary: analysis.ComputeSessionStats(result.TimeSeries, result.FaultEvents, result.Anomalies, args.Day),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	if args.Out == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(args.Out, data, 0644); err != nil {
		return err
	}
	log.Infof("Report written to %s", args.Out)
	return nil
}
