package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/nocvalidator/backend/internal/logger"
	"github.com/nocvalidator/backend/internal/services"
)

// ValidationConfig holds the scoring and rule configuration for the
// validation pipeline. Defaults cover UAE NOC certificates; a config.json
// in the working directory overrides any subset of them.
type ValidationConfig struct {
	TrackedFields     []string           `json:"tracked_fields"`
	FieldWeights      map[string]float64 `json:"field_weights"`
	MandatoryFields   []string           `json:"mandatory_fields"`
	FriendlyLabels    map[string]string  `json:"friendly_labels"`
	ApprovalThreshold float64            `json:"approval_threshold"`
	ReviewThreshold   float64            `json:"review_threshold"`
	MaxPagesPerChunk  int                `json:"max_pages_per_chunk"`
	MaxParallelChunks int                `json:"max_parallel_chunks"`
	MaxFileSizeMB     float64            `json:"max_file_size_mb"`
	Rules             []RuleConfig       `json:"validation_rules"`
}

// RuleConfig is the on-disk form of a field rule. Type selects the rule
// kind; the remaining keys apply per kind.
type RuleConfig struct {
	Field         string   `json:"field"`
	Type          string   `json:"type"`
	MaxAgeMonths  float64  `json:"max_age_months,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
	FuzzyMatch    *bool    `json:"fuzzy_match,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
}

// Default returns the built-in NOC validation configuration.
func Default() *ValidationConfig {
	fuzzy := true
	return &ValidationConfig{
		TrackedFields: []string{
			"applicationNumber",
			"issuingAuthority",
			"ownerName",
			"issueDate",
			"documentStatus",
		},
		FieldWeights: map[string]float64{
			"applicationNumber": 0.2,
			"issuingAuthority":  0.2,
			"ownerName":         0.2,
			"issueDate":         0.2,
			"documentStatus":    0.2,
		},
		MandatoryFields: []string{
			"applicationNumber",
			"issuingAuthority",
			"ownerName",
			"issueDate",
		},
		FriendlyLabels: map[string]string{
			"applicationNumber": "Application Number",
			"issuingAuthority":  "Issuing Authority",
			"ownerName":         "Owner Name",
			"issueDate":         "Issue Date",
			"documentStatus":    "Document Status",
		},
		ApprovalThreshold: 0.85,
		ReviewThreshold:   0.6,
		MaxPagesPerChunk:  10,
		MaxParallelChunks: 3,
		MaxFileSizeMB:     50,
		Rules: []RuleConfig{
			{
				Field:        "issueDate",
				Type:         "date_age",
				MaxAgeMonths: 6,
				ErrorMessage: "Certificate is older than 6 months",
			},
			{
				Field: "issuingAuthority",
				Type:  "whitelist",
				AllowedValues: []string{
					"Dubai Municipality",
					"Abu Dhabi Municipality",
					"Sharjah Municipality",
					"Dubai Development Authority",
					"Trakhees",
				},
				FuzzyMatch:   &fuzzy,
				ErrorMessage: "Issuing authority is not recognized",
			},
		},
	}
}

// applyJSON overrides configuration sections from raw JSON. Each top-level
// key present in the file replaces the matching section wholesale; keys the
// file omits keep their defaults. Without the per-key pass, unmarshalling
// into a populated struct would merge map entries, leaving default weights
// behind a partial field_weights override.
func (c *ValidationConfig) applyJSON(raw []byte) error {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return err
	}

	for key, section := range sections {
		var err error
		switch key {
		case "tracked_fields":
			c.TrackedFields = nil
			err = json.Unmarshal(section, &c.TrackedFields)
		case "field_weights":
			c.FieldWeights = nil
			err = json.Unmarshal(section, &c.FieldWeights)
		case "mandatory_fields":
			c.MandatoryFields = nil
			err = json.Unmarshal(section, &c.MandatoryFields)
		case "friendly_labels":
			c.FriendlyLabels = nil
			err = json.Unmarshal(section, &c.FriendlyLabels)
		case "approval_threshold":
			err = json.Unmarshal(section, &c.ApprovalThreshold)
		case "review_threshold":
			err = json.Unmarshal(section, &c.ReviewThreshold)
		case "max_pages_per_chunk":
			err = json.Unmarshal(section, &c.MaxPagesPerChunk)
		case "max_parallel_chunks":
			err = json.Unmarshal(section, &c.MaxParallelChunks)
		case "max_file_size_mb":
			err = json.Unmarshal(section, &c.MaxFileSizeMB)
		case "validation_rules":
			c.Rules = nil
			err = json.Unmarshal(section, &c.Rules)
		default:
			// Unknown keys are ignored so a newer config file still loads.
		}
		if err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// Load returns the default configuration with overrides from config.json
// when the file exists. Each section present in the file replaces the
// default section wholesale. Environment variables override individual
// limits last.
func Load() *ValidationConfig {
	cfg := Default()

	if raw, err := os.ReadFile("config.json"); err == nil {
		if err := cfg.applyJSON(raw); err != nil {
			logger.Warn("Ignoring malformed config.json", map[string]interface{}{"error": err.Error()})
			cfg = Default()
		} else {
			logger.Info("Loaded validation config overrides from config.json", nil)
		}
	}

	if v := os.Getenv("MAX_PAGES_PER_CHUNK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPagesPerChunk = n
		}
	}
	if v := os.Getenv("MAX_PARALLEL_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxParallelChunks = n
		}
	}
	if v := os.Getenv("MAX_FILE_SIZE_MB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.MaxFileSizeMB = f
		}
	}

	return cfg
}

// ScoringConfig converts the configuration into the form the scorer expects.
func (c *ValidationConfig) ScoringConfig() services.ScoringConfig {
	return services.ScoringConfig{
		TrackedFields:   c.TrackedFields,
		Weights:         c.FieldWeights,
		MandatoryFields: c.MandatoryFields,
		FriendlyLabels:  c.FriendlyLabels,
	}
}

// BuildRules materializes the configured field rules. Unknown rule types
// are an error so typos in config.json fail loudly at startup.
func (c *ValidationConfig) BuildRules() (map[string]services.Rule, error) {
	rules := make(map[string]services.Rule, len(c.Rules))
	for _, rc := range c.Rules {
		if rc.Field == "" {
			return nil, fmt.Errorf("validation rule missing field name")
		}
		switch rc.Type {
		case "date_age":
			if rc.MaxAgeMonths <= 0 {
				return nil, fmt.Errorf("date_age rule for %q needs a positive max_age_months", rc.Field)
			}
			rules[rc.Field] = services.DateAgeRule{
				MaxAgeMonths: rc.MaxAgeMonths,
				ErrorMessage: rc.ErrorMessage,
			}
		case "whitelist":
			if len(rc.AllowedValues) == 0 {
				return nil, fmt.Errorf("whitelist rule for %q needs allowed_values", rc.Field)
			}
			fuzzy := true
			if rc.FuzzyMatch != nil {
				fuzzy = *rc.FuzzyMatch
			}
			rules[rc.Field] = services.WhitelistRule{
				AllowedValues: rc.AllowedValues,
				CaseSensitive: rc.CaseSensitive,
				FuzzyMatch:    fuzzy,
				ErrorMessage:  rc.ErrorMessage,
			}
		default:
			return nil, fmt.Errorf("unknown validation rule type %q for field %q", rc.Type, rc.Field)
		}
	}
	return rules, nil
}
