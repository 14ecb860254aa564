package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"txfix/pkg/diagnosis"
	"txfix/pkg/feebump"
	"txfix/pkg/mempool"
	"txfix/pkg/service"
)

// logWriter implements an io.Writer that outputs to both the console and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

// Write writes the data in p to the console and the log rotator.
func (logWriter) Write(p []byte) (n int, err error) {
	if logRotator == nil {
		return console.Write(p)
	}
	console.Write(p)
	return logRotator.Write(p) // not safe concurrent writes, so only one logWriter{} allowed!
}

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it will write to the backend. When adding new
// subsystems, add it to the subsystemLoggers map.
var (
	console io.Writer = os.Stderr

	// logRotator is one of the logging outputs. Use InitLogRotator to set it.
	// It should be closed on application shutdown.
	logRotator *rotator.Rotator

	backendLog = slog.NewBackend(logWriter{})

	mainLog = backendLog.Logger("MAIN")
	diagLog = backendLog.Logger("DIAG")
	bumpLog = backendLog.Logger("BUMP")
	mpolLog = backendLog.Logger("MPOL")
	srvcLog = backendLog.Logger("SRVC")
	webLog  = backendLog.Logger("WEB")

	subsystemLoggers = map[string]slog.Logger{
		"MAIN": mainLog,
		"DIAG": diagLog,
		"BUMP": bumpLog,
		"MPOL": mpolLog,
		"SRVC": srvcLog,
		"WEB":  webLog,
	}
)

func init() {
	diagnosis.UseLogger(diagLog)
	feebump.UseLogger(bumpLog)
	mempool.UseLogger(mpolLog)
	service.UseLogger(srvcLog)
}

// Logger returns the logger of a subsystem, or a disabled logger for an
// unknown one.
func Logger(subsystem string) slog.Logger {
	if l, ok := subsystemLoggers[subsystem]; ok {
		return l
	}
	return slog.Disabled
}

// SetConsole redirects console output, e.g. to keep stdout clean for JSON.
func SetConsole(w io.Writer) {
	console = w
}

// InitLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotator variables are used.
func InitLogRotator(logFile string, maxRolls int) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, 32*1024, false, maxRolls)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// Close flushes and closes the log rotator, if any.
func Close() {
	if logRotator != nil {
		logRotator.Close()
	}
}

// SupportedSubsystems returns the sorted subsystem identifiers.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetDebugLevels sets log levels from a string that is either a single
// level for every subsystem, or comma-separated SUBSYS=level pairs.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		lvl, ok := slog.LevelFromString(debugLevel)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		for _, logger := range subsystemLoggers {
			logger.SetLevel(lvl)
		}
		return nil
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", pair)
		}
		subsysID, levelStr := fields[0], fields[1]
		logger, ok := subsystemLoggers[subsysID]
		if !ok {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- supported subsystems %v",
				subsysID, SupportedSubsystems())
		}
		lvl, ok := slog.LevelFromString(levelStr)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is invalid", levelStr)
		}
		logger.SetLevel(lvl)
	}
	return nil
}
