package context

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// GetLogger - return the logger on the context, error if not present
func GetLogger(ctx context.Context) (*zerolog.Logger, error) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		return nil, ErrNotInContext
	}
	return logger, nil
}

// GetStringFromContext - return a string value from the context for the given key
func GetStringFromContext(ctx context.Context, key CTXKey) (string, error) {
	v := ctx.Value(key)
	if v == nil {
		return "", ErrNotInContext
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrValueWrongType
	}
	return s, nil
}

// GetBoolFromContext - return a bool value from the context for the given key
func GetBoolFromContext(ctx context.Context, key CTXKey) (bool, error) {
	v := ctx.Value(key)
	if v == nil {
		return false, ErrNotInContext
	}
	b, ok := v.(bool)
	if !ok {
		return false, ErrValueWrongType
	}
	return b, nil
}

// GetIntFromContext - return an int value from the context for the given key
func GetIntFromContext(ctx context.Context, key CTXKey) (int, error) {
	v := ctx.Value(key)
	if v == nil {
		return 0, ErrNotInContext
	}
	i, ok := v.(int)
	if !ok {
		return 0, ErrValueWrongType
	}
	return i, nil
}

// GetDurationFromContext - return a duration value from the context for the given key
func GetDurationFromContext(ctx context.Context, key CTXKey) (time.Duration, error) {
	v := ctx.Value(key)
	if v == nil {
		return 0, ErrNotInContext
	}
	d, ok := v.(time.Duration)
	if !ok {
		return 0, ErrValueWrongType
	}
	return d, nil
}

// GetLogLevelFromContext - return the zerolog level on the context, defaulting to info
func GetLogLevelFromContext(ctx context.Context, key CTXKey) (zerolog.Level, error) {
	v := ctx.Value(key)
	if v == nil {
		return zerolog.InfoLevel, ErrNotInContext
	}
	switch level := v.(type) {
	case zerolog.Level:
		return level, nil
	case string:
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.InfoLevel, ErrValueWrongType
		}
		return parsed, nil
	default:
		return zerolog.InfoLevel, ErrValueWrongType
	}
}
