package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	client "github.com/zelenin/go-tdlib/client"
	"gopkg.in/ini.v1"
	"gopkg.in/natefinch/lumberjack.v2"
)

// subsystem binds a named logger to its level key in [logging].
type subsystem struct {
	target **logrus.Entry
	name   string
	key    string
}

var subsystems = []subsystem{
	{&coreLog, "core", "core"},
	{&sipLog, "sip", "sip"},
	{&audioLog, "audio", "audio"},
	{&tgLog, "tdlib", "telegram"},
}

var (
	coreLog  *logrus.Entry
	sipLog   *logrus.Entry
	audioLog *logrus.Entry
	tgLog    *logrus.Entry
	logFile  *lumberjack.Logger
)

// initLogging configures one logger per subsystem, each writing to the
// console and the rotated log file at its own threshold.
func initLogging(cfg *ini.File, tdlib bool) error {
	sec := cfg.Section("logging")

	consoleMin := toLogrusLevel(sec.Key("console_min_level").MustInt(0))
	fileMin := toLogrusLevel(sec.Key("file_min_level").MustInt(0))

	logFile = &lumberjack.Logger{
		Filename:   sec.Key("file").MustString("callaudio.log"),
		MaxSize:    100, // megabytes
		MaxBackups: 1,
	}

	for _, sub := range subsystems {
		level := toLogrusLevel(sec.Key(sub.key).MustInt(2))
		*sub.target = newLogger(sub.name, level, consoleMin, fileMin, logFile)
	}

	if !tdlib {
		return nil
	}
	tdlibLevel := int32(sec.Key("tdlib").MustInt(3))
	if _, err := client.SetLogStream(&client.SetLogStreamRequest{LogStream: &client.LogStreamFile{Path: "tdlib.log", MaxFileSize: 100 * 1024 * 1024}}); err != nil {
		return err
	}
	_, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{NewVerbosityLevel: tdlibLevel})
	return err
}

// closeLogging flushes and closes log files.
func closeLogging(tdlib bool) {
	if logFile != nil {
		_ = logFile.Close()
	}
	if tdlib {
		_, _ = client.SetLogStream(&client.SetLogStreamRequest{LogStream: &client.LogStreamEmpty{}})
	}
}

// sinkHook copies entries at or above a threshold to one writer.
type sinkHook struct {
	w      io.Writer
	levels []logrus.Level
}

func (h *sinkHook) Levels() []logrus.Level { return h.levels }

func (h *sinkHook) Fire(e *logrus.Entry) error {
	line, err := e.Bytes()
	if err != nil {
		return err
	}
	_, err = h.w.Write(line)
	return err
}

// newLogger discards logrus' own output; the console and file hooks each
// apply their own minimum level on top of the logger's.
func newLogger(name string, level, consoleMin, fileMin logrus.Level, file io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(io.Discard)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	logger.AddHook(&sinkHook{w: os.Stdout, levels: levelsUpTo(consoleMin)})
	if file != nil {
		logger.AddHook(&sinkHook{w: file, levels: levelsUpTo(fileMin)})
	}
	return logger.WithField("name", name)
}

// levelsUpTo returns every level as severe as threshold or more.
func levelsUpTo(threshold logrus.Level) []logrus.Level {
	return logrus.AllLevels[:threshold+1]
}

// configLevels maps the 0 (trace) to 5 (fatal) scale of settings.ini.
var configLevels = []logrus.Level{
	logrus.TraceLevel,
	logrus.DebugLevel,
	logrus.InfoLevel,
	logrus.WarnLevel,
	logrus.ErrorLevel,
	logrus.FatalLevel,
}

// toLogrusLevel converts a settings level; anything above 5 turns the
// logger off except for panics.
func toLogrusLevel(v int) logrus.Level {
	switch {
	case v < 0:
		return logrus.TraceLevel
	case v >= len(configLevels):
		return logrus.PanicLevel
	}
	return configLevels[v]
}
