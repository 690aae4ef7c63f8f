package log

import (
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"
)

// Logger is the process-global logger. InitLogger replaces it once at
// startup; everything else just calls Logger.Log.
var Logger = log.NewNopLogger()

// InitLogger builds the process-global Logger from a level name and sets it
// as the package-level Logger. Unrecognized levels fall back to info.
func InitLogger(levelName string) {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))

	var lvl level.Option
	switch levelName {
	case "debug":
		lvl = level.AllowDebug()
	case "warn":
		lvl = level.AllowWarn()
	case "error":
		lvl = level.AllowError()
	default:
		lvl = level.AllowInfo()
	}

	Logger = level.NewFilter(base, lvl)
}

// RateLimitedLogger drops log lines above logsPerSecond rather than letting a
// hot loop (e.g. repeated Gateway failures for the same variable) flood the
// underlying logger.
type RateLimitedLogger struct {
	limiter *rate.Limiter
	logger  log.Logger
}

func NewRateLimitedLogger(logsPerSecond int, logger log.Logger) *RateLimitedLogger {
	return &RateLimitedLogger{
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), 1),
		logger:  logger,
	}
}

func (l *RateLimitedLogger) Log(keyvals ...interface{}) error {
	if !l.limiter.AllowN(time.Now(), 1) {
		return nil
	}
	return l.logger.Log(keyvals...)
}
