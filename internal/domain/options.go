package domain

import (
	"fmt"
	"math"
	"strings"
)

// Options is the open extra-options bag merged into a job configuration.
// Only allow-listed keys are forwarded to the remote service; anything else
// is rejected at validation time instead of being passed through untyped.
type Options map[string]any

const (
	OptionNegativePrompt   = "negative_prompt"
	OptionSeed             = "seed"
	OptionDurationSeconds  = "duration_seconds"
	OptionPersonGeneration = "person_generation"
	OptionEnhancePrompt    = "enhance_prompt"
)

const (
	minDurationSeconds = 4
	maxDurationSeconds = 8
)

var allowedPersonGeneration = map[string]struct{}{
	"allow_all":   {},
	"allow_adult": {},
	"dont_allow":  {},
}

// Validate checks every entry against the allow-list. A nil bag is valid.
func (o Options) Validate() error {
	for key, value := range o {
		switch key {
		case OptionNegativePrompt:
			if _, ok := value.(string); !ok {
				return fmt.Errorf("%w: %s must be a string", ErrInvalidOption, key)
			}
		case OptionSeed:
			if _, err := intOption(value); err != nil {
				return fmt.Errorf("%w: %s must be an integer", ErrInvalidOption, key)
			}
		case OptionDurationSeconds:
			n, err := intOption(value)
			if err != nil {
				return fmt.Errorf("%w: %s must be an integer", ErrInvalidOption, key)
			}
			if n < minDurationSeconds || n > maxDurationSeconds {
				return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidOption, key, minDurationSeconds, maxDurationSeconds)
			}
		case OptionPersonGeneration:
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: %s must be a string", ErrInvalidOption, key)
			}
			if _, allowed := allowedPersonGeneration[strings.ToLower(strings.TrimSpace(s))]; !allowed {
				return fmt.Errorf("%w: %s must be one of allow_all, allow_adult, dont_allow", ErrInvalidOption, key)
			}
		case OptionEnhancePrompt:
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("%w: %s must be a boolean", ErrInvalidOption, key)
			}
		default:
			return fmt.Errorf("%w: unknown option %q", ErrInvalidOption, key)
		}
	}
	return nil
}

// Parameters returns the validated entries in the wire casing expected by the
// video endpoint. Callers must Validate first.
func (o Options) Parameters() map[string]any {
	if len(o) == 0 {
		return nil
	}
	params := make(map[string]any, len(o))
	for key, value := range o {
		switch key {
		case OptionNegativePrompt:
			params["negativePrompt"] = value
		case OptionSeed:
			if n, err := intOption(value); err == nil {
				params["seed"] = n
			}
		case OptionDurationSeconds:
			if n, err := intOption(value); err == nil {
				params["durationSeconds"] = n
			}
		case OptionPersonGeneration:
			if s, ok := value.(string); ok {
				params["personGeneration"] = strings.ToLower(strings.TrimSpace(s))
			}
		case OptionEnhancePrompt:
			params["enhancePrompt"] = value
		}
	}
	return params
}

// intOption accepts the numeric shapes JSON decoding can produce.
func intOption(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer")
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("not an integer")
	}
}
