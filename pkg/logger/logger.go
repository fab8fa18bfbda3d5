package logger

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SetupLogger builds the process logger. logMode selects console output for
// development or sampled JSON for production, logLevel is any zap level name.
func SetupLogger(logMode, logLevel string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, errors.WithMessage(err, "parsing loglevel")
	}

	development := logMode == "development"
	encoding := "json"
	encoderConfig := zap.NewProductionEncoderConfig()
	var sampling *zap.SamplingConfig
	if development {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		sampling = &zap.SamplingConfig{Initial: 1, Thereafter: 2}
	}

	l := zap.Config{
		Level:             lvl,
		Development:       development,
		DisableCaller:     false,
		DisableStacktrace: !development,
		Sampling:          sampling,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	log, err := l.Build()
	if err != nil {
		return nil, errors.WithMessage(err, "building logger")
	}
	return log, nil
}
