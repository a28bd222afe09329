package logs

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger — глобальный логгер приложения. До Init пишет в stderr с уровнем info,
// чтобы пакеты (и тесты) могли логировать без явной инициализации.
var Logger = logrus.New()

// Options — параметры инициализации логгера.
type Options struct {
	Level  string // trace|debug|info|warning|error|fatal
	Format string // text|json
	File   string // путь/префикс лог-файла; если пусто, только stdout
}

// Init настраивает глобальный логгер по переданным опциям.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// New собирает логгер, не трогая глобальный.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetLevel(ParseLevel(opts.Level))

	// формат
	if opts.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	// вывод
	if opts.File == "" {
		l.SetOutput(os.Stdout)
		return l, nil
	}
	currentTime := time.Now().Format("2006-01-02_15-04-05")
	logFileName := fmt.Sprintf("%s_%s.log", opts.File, currentTime)
	file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logFileName, err)
	}
	l.SetOutput(io.MultiWriter(file, os.Stdout))
	return l, nil
}

// ParseLevel переводит строку из конфига в уровень; неизвестное: info.
func ParseLevel(s string) logrus.Level {
	switch s {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warning", "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Peer — логгер с полем peer.
func Peer(name string) *logrus.Entry {
	return Logger.WithField("peer", name)
}
