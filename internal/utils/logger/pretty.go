// internal/utils/logger/pretty.go
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// PrettyEncoder is the console encoder for interactive use: short
// timestamps, colored levels and no caller.
func PrettyEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		TimeKey:          "time",
		NameKey:          "logger",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      prettyLevelEncoder,
		EncodeTime:       prettyTimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	})
}

func prettyLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(colorCyan + "[DEBUG]" + colorReset)
	case zapcore.InfoLevel:
		enc.AppendString(colorGreen + "[INFO]" + colorReset)
	case zapcore.WarnLevel:
		enc.AppendString(colorYellow + "[WARN]" + colorReset)
	case zapcore.ErrorLevel:
		enc.AppendString(colorRed + "[ERROR]" + colorReset)
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		enc.AppendString(colorRed + colorBold + "[" + level.CapitalString() + "]" + colorReset)
	default:
		enc.AppendString(fmt.Sprintf("[%s]", level.CapitalString()))
	}
}

func prettyTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}
