package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var (
	AppLogger   *log.Logger
	RelayLogger *log.Logger
	ErrorLogger *log.Logger

	logLevel     string
	appLogFile   *os.File
	relayLogFile *os.File
	initialized  bool
)

func InitGlobalLoggers(appLogPath, relayLogPath, level string) error {
	if initialized && appLogFile != nil && relayLogFile != nil && strings.ToUpper(level) == logLevel {
		// Already initialized with same settings, perhaps a redundant call.
		return nil
	}
	// If files are open, close them before re-initializing
	if appLogFile != nil {
		appLogFile.Close()
		appLogFile = nil
	}
	if relayLogFile != nil {
		relayLogFile.Close()
		relayLogFile = nil
	}

	logLevel = strings.ToUpper(level)
	if logLevel == "" {
		logLevel = "INFO"
	}

	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	actualAppLogPath := appLogPath
	appLogDir := filepath.Dir(appLogPath)
	var appLogWriter io.Writer = io.Discard
	if err := os.MkdirAll(appLogDir, 0750); err != nil {
		ErrorLogger.Printf("Failed to create app log directory %s: %v. App logs (Info/Debug) will be discarded.", appLogDir, err)
		actualAppLogPath = "(discarded)"
	} else {
		var errApp error
		appLogFile, errApp = os.OpenFile(appLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if errApp != nil {
			ErrorLogger.Printf("Failed to open app log file %s: %v. App logs (Info/Debug) will be discarded.", appLogPath, errApp)
			actualAppLogPath = "(discarded)"
		} else {
			appLogWriter = appLogFile // Always use the file if openable
		}
	}
	AppLogger = log.New(appLogWriter, "APP: ", log.Ldate|log.Ltime|log.Lshortfile)

	actualRelayLogPath := relayLogPath
	relayLogDir := filepath.Dir(relayLogPath)
	var relayLogWriter io.Writer = io.Discard
	if err := os.MkdirAll(relayLogDir, 0750); err != nil {
		ErrorLogger.Printf("Failed to create relay log directory %s: %v. Relay logs (Info/Debug) will be discarded.", relayLogDir, err)
		actualRelayLogPath = "(discarded)"
	} else {
		var errRelay error
		relayLogFile, errRelay = os.OpenFile(relayLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if errRelay != nil {
			ErrorLogger.Printf("Failed to open relay log file %s: %v. Relay logs (Info/Debug) will be discarded.", relayLogPath, errRelay)
			actualRelayLogPath = "(discarded)"
		} else {
			relayLogWriter = relayLogFile // Always use the file if openable
		}
	}
	RelayLogger = log.New(relayLogWriter, "RELAY: ", log.Ldate|log.Ltime|log.Lshortfile)

	if !initialized { // Print init messages only once
		AppLogger.Printf("App logger initialized. Log level: %s. Output file: %s", logLevel, actualAppLogPath)
		RelayLogger.Printf("Relay logger initialized. Log level: %s. Output file: %s", logLevel, actualRelayLogPath)
	}
	initialized = true
	return nil
}

func Info(format string, v ...interface{}) {
	if AppLogger != nil && (logLevel == "INFO" || logLevel == "DEBUG") {
		AppLogger.Printf(format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if AppLogger != nil && logLevel == "DEBUG" {
		AppLogger.Printf(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if AppLogger != nil && (logLevel == "WARN" || logLevel == "INFO" || logLevel == "DEBUG") { // Warnings also show if level is INFO or DEBUG
		AppLogger.Printf(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Print(message)
	}
	if AppLogger != nil && appLogFile != nil {
		AppLogger.Print(message)
	}
}

func Fatal(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Fatal(message)
	} else {
		log.Fatal(message)
	}
}

func RelayInfo(format string, v ...interface{}) {
	if RelayLogger != nil && (logLevel == "INFO" || logLevel == "DEBUG") {
		RelayLogger.Printf(format, v...)
	}
}

func RelayDebug(format string, v ...interface{}) {
	if RelayLogger != nil && logLevel == "DEBUG" {
		RelayLogger.Printf(format, v...)
	}
}

func RelayError(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil { // All errors go to stderr via ErrorLogger
		ErrorLogger.Print(message)
	}
	if RelayLogger != nil && relayLogFile != nil { // Also write to relay log file
		RelayLogger.Print(message)
	}
}

func CloseLogFiles() {
	if appLogFile != nil {
		AppLogger.Println("Closing app log file.")
		appLogFile.Close()
		appLogFile = nil // Prevent double close
	}
	if relayLogFile != nil {
		RelayLogger.Println("Closing relay log file.")
		relayLogFile.Close()
		relayLogFile = nil // Prevent double close
	}
	initialized = false // Allow re-initialization if needed (e.g. tests)
}
