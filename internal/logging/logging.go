package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	disabled = false
	logger   = log.New(os.Stdout, "", log.LstdFlags)
	fileOut  io.WriteCloser
)

// Disable turns off all logging
func Disable() {
	disabled = true
}

// Enable turns logging back on
func Enable() {
	disabled = false
}

// InitFile routes log output to a rotating file in addition to stdout.
// Safe to call once at startup; subsequent calls replace the file sink.
func InitFile(path string) {
	if fileOut != nil {
		fileOut.Close()
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
	}
	fileOut = lj
	logger.SetOutput(io.MultiWriter(os.Stdout, lj))
}

// Close flushes and closes the file sink if one was configured.
func Close() {
	if fileOut != nil {
		fileOut.Close()
		fileOut = nil
		logger.SetOutput(os.Stdout)
	}
}

// Info logs an info message
func Info(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Error logs an error message
func Error(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warn logs a warning message
func Warn(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}
