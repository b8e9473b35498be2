package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.API.AppID = "app"
	cfg.API.APIKey = "key"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("defaults with credentials must validate: %v", err)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	if !fields["api.app_id"] || !fields["api.api_key"] {
		t.Errorf("expected both credential errors, got %v", verrs)
	}
}

func TestValidateCollection(t *testing.T) {
	cfg := validConfig()
	cfg.Collections["broken"] = CollectionSpec{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "collections.broken.object") {
		t.Errorf("expected missing object error, got %v", msg)
	}
	if !strings.Contains(msg, "email_field or name_field") {
		t.Errorf("expected identifier field error, got %v", msg)
	}
}

func TestValidatePairReferences(t *testing.T) {
	cfg := validConfig()
	cfg.Pairs["bad"] = PairSpec{Source: "nope", Target: "results"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "pairs.bad.source") {
		t.Errorf("expected unknown source error, got %v", msg)
	}
	if !strings.Contains(msg, "pairs.bad.connection_field") {
		t.Errorf("expected missing connection_field error, got %v", msg)
	}
}

func TestValidateChainMustBeAPath(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.Hops[1].From = "accounts" // breaks the path

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "chain.hops[1].from") {
		t.Errorf("expected path error, got %v", err)
	}
}

func TestValidateProcessing(t *testing.T) {
	cfg := validConfig()
	cfg.Processing.PageSize = 0
	cfg.Processing.KeepPolicy = "most-recent"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "processing.page_size") {
		t.Errorf("expected page_size error, got %v", msg)
	}
	if !strings.Contains(msg, "processing.keep_policy") {
		t.Errorf("expected keep_policy error, got %v", msg)
	}
}

func TestValidateLogging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "logging.level") || !strings.Contains(msg, "logging.format") {
		t.Errorf("expected logging errors, got %v", msg)
	}
}
