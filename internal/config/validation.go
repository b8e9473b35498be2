package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
// Missing credentials are fatal here, before any fetch begins.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.API.AppID == "" {
		errors = append(errors, ValidationError{
			Field:   "api.app_id",
			Message: "application ID is required (set KNACK_APP_ID or api.app_id)",
		})
	}
	if c.API.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "api.api_key",
			Message: "API key is required (set KNACK_API_KEY or api.api_key)",
		})
	}

	if len(c.Collections) == 0 {
		errors = append(errors, ValidationError{
			Field:   "collections",
			Message: "at least one collection must be defined",
		})
	}
	for name, spec := range c.Collections {
		errors = append(errors, c.validateCollection(name, &spec)...)
	}

	for name, pair := range c.Pairs {
		errors = append(errors, c.validatePair(name, &pair)...)
	}

	errors = append(errors, c.validateChain()...)
	errors = append(errors, c.validateProcessing()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateCollection(name string, spec *CollectionSpec) ValidationErrors {
	var errors ValidationErrors
	prefix := fmt.Sprintf("collections.%s", name)

	if spec.Object == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".object",
			Message: "object key is required",
		})
	}
	if spec.EmailField == "" && spec.NameField == "" {
		errors = append(errors, ValidationError{
			Field:   prefix,
			Message: "at least one of email_field or name_field is required",
		})
	}

	return errors
}

func (c *Config) validatePair(name string, pair *PairSpec) ValidationErrors {
	var errors ValidationErrors
	prefix := fmt.Sprintf("pairs.%s", name)

	if _, ok := c.Collections[pair.Source]; !ok {
		errors = append(errors, ValidationError{
			Field:   prefix + ".source",
			Message: fmt.Sprintf("unknown collection %q", pair.Source),
		})
	}
	if _, ok := c.Collections[pair.Target]; !ok {
		errors = append(errors, ValidationError{
			Field:   prefix + ".target",
			Message: fmt.Sprintf("unknown collection %q", pair.Target),
		})
	}
	if pair.ConnectionField == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".connection_field",
			Message: "connection_field is required",
		})
	}

	return errors
}

func (c *Config) validateChain() ValidationErrors {
	var errors ValidationErrors

	if len(c.Chain.Hops) == 0 {
		return errors // chain is optional
	}

	if _, ok := c.Collections[c.Chain.Root]; !ok {
		errors = append(errors, ValidationError{
			Field:   "chain.root",
			Message: fmt.Sprintf("unknown collection %q", c.Chain.Root),
		})
	}

	prev := c.Chain.Root
	for i, hop := range c.Chain.Hops {
		prefix := fmt.Sprintf("chain.hops[%d]", i)
		if hop.From != prev {
			errors = append(errors, ValidationError{
				Field:   prefix + ".from",
				Message: fmt.Sprintf("hop must start at %q (chain is a path, not a graph)", prev),
			})
		}
		if _, ok := c.Collections[hop.To]; !ok {
			errors = append(errors, ValidationError{
				Field:   prefix + ".to",
				Message: fmt.Sprintf("unknown collection %q", hop.To),
			})
		}
		prev = hop.To
	}

	if c.Chain.SourceOfTruth != "" {
		if _, ok := c.Collections[c.Chain.SourceOfTruth]; !ok {
			errors = append(errors, ValidationError{
				Field:   "chain.source_of_truth",
				Message: fmt.Sprintf("unknown collection %q", c.Chain.SourceOfTruth),
			})
		}
	}

	return errors
}

func (c *Config) validateProcessing() ValidationErrors {
	var errors ValidationErrors

	if c.Processing.PageSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.page_size",
			Message: "page_size must be positive",
		})
	}
	if c.Processing.RatePerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.rate_per_second",
			Message: "rate_per_second must be positive",
		})
	}

	validPolicies := map[string]bool{"oldest": true, "newest": true, "": true}
	if !validPolicies[c.Processing.KeepPolicy] {
		errors = append(errors, ValidationError{
			Field:   "processing.keep_policy",
			Message: "keep_policy must be 'oldest' or 'newest'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
