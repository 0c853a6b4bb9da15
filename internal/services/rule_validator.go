package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const daysPerMonth = 30.44

// Rule is a closed union of the supported business rule kinds. Rules are
// data; RuleValidator interprets them.
type Rule interface {
	rule()
}

// DateAgeRule rejects dates older than MaxAgeMonths.
type DateAgeRule struct {
	MaxAgeMonths float64
	ErrorMessage string
}

func (DateAgeRule) rule() {}

// WhitelistRule rejects values not found in AllowedValues. With FuzzyMatch
// enabled, substring containment and word overlap are tried after the exact
// comparison fails.
type WhitelistRule struct {
	AllowedValues []string
	CaseSensitive bool
	FuzzyMatch    bool
	ErrorMessage  string
}

func (WhitelistRule) rule() {}

type FieldRuleStatus string

const (
	RuleStatusPassed  FieldRuleStatus = "passed"
	RuleStatusFailed  FieldRuleStatus = "failed"
	RuleStatusSkipped FieldRuleStatus = "skipped"
	RuleStatusError   FieldRuleStatus = "error"
)

// FieldValidation records the outcome of one rule against one field.
type FieldValidation struct {
	Status       FieldRuleStatus `json:"status"`
	Value        string          `json:"value,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	ParsedDate   string          `json:"parsedDate,omitempty"`
	AgeMonths    float64         `json:"ageMonths,omitempty"`
	MaxAgeMonths float64         `json:"maxAgeMonths,omitempty"`
	MatchedValue string          `json:"matchedValue,omitempty"`
}

// ValidationResult is the rule validator's output. Violations invalidate the
// document; warnings never do.
type FieldValidationMap map[string]FieldValidation

type ValidationResult struct {
	Valid           bool               `json:"valid"`
	Violations      []string           `json:"violations"`
	Warnings        []string           `json:"warnings"`
	Details         FieldValidationMap `json:"validationDetails"`
	FieldsValidated int                `json:"fieldsValidated"`
}

// RuleValidator checks merged extraction fields against per-field business
// rules. Rules are evaluated in sorted field-name order so results are
// deterministic.
type RuleValidator struct {
	rules  map[string]Rule
	labels map[string]string
	now    func() time.Time
}

func NewRuleValidator(rules map[string]Rule, labels map[string]string) *RuleValidator {
	return &RuleValidator{rules: rules, labels: labels, now: time.Now}
}

func (v *RuleValidator) label(field string) string {
	if label, ok := v.labels[field]; ok && label != "" {
		return label
	}
	return field
}

// Validate runs all configured rules. logf may be nil; when set it receives
// per-rule log lines for the job trail. Zero configured rules is a no-op
// pass, not an error.
func (v *RuleValidator) Validate(fields ExtractionResult, logf JobLogFunc) ValidationResult {
	if logf == nil {
		logf = func(string) {}
	}

	result := ValidationResult{
		Valid:      true,
		Violations: []string{},
		Warnings:   []string{},
		Details:    FieldValidationMap{},
	}
	if len(v.rules) == 0 {
		return result
	}

	names := make([]string, 0, len(v.rules))
	for name := range v.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := strings.TrimSpace(fields[name].Value)
		if value == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Field '%s' not extracted - cannot validate", v.label(name)))
			result.Details[name] = FieldValidation{Status: RuleStatusSkipped, Reason: "field not extracted"}
			continue
		}

		switch rule := v.rules[name].(type) {
		case DateAgeRule:
			v.checkDateAge(name, value, rule, &result, logf)
		case WhitelistRule:
			v.checkWhitelist(name, value, rule, &result, logf)
		}
	}

	result.Valid = len(result.Violations) == 0
	return result
}

func (v *RuleValidator) checkDateAge(name, value string, rule DateAgeRule, result *ValidationResult, logf JobLogFunc) {
	parsed, err := dateparse.ParseAny(value)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: could not parse date '%s': %v", v.label(name), value, err))
		result.Details[name] = FieldValidation{
			Status: RuleStatusError,
			Value:  value,
			Reason: fmt.Sprintf("date parsing failed: %v", err),
		}
		logf(fmt.Sprintf("Date parsing error for %s: %v", name, err))
		return
	}

	ageDays := v.now().Sub(parsed).Hours() / 24
	ageMonths := ageDays / daysPerMonth

	detail := FieldValidation{
		Value:        value,
		ParsedDate:   parsed.Format("2006-01-02"),
		AgeMonths:    math.Round(ageMonths*10) / 10,
		MaxAgeMonths: rule.MaxAgeMonths,
	}

	if ageMonths > rule.MaxAgeMonths {
		detail.Status = RuleStatusFailed
		detail.Reason = rule.ErrorMessage
		result.Violations = append(result.Violations,
			fmt.Sprintf("%s: date is %.1f months old (exceeds %.0f month limit). %s",
				v.label(name), ageMonths, rule.MaxAgeMonths, rule.ErrorMessage))
		logf(fmt.Sprintf("Date validation failed: %s is %.1f months old", name, ageMonths))
	} else {
		detail.Status = RuleStatusPassed
		result.FieldsValidated++
		logf(fmt.Sprintf("Date validation passed: %s is %.1f months old", name, ageMonths))
	}
	result.Details[name] = detail
}

func (v *RuleValidator) checkWhitelist(name, value string, rule WhitelistRule, result *ValidationResult, logf JobLogFunc) {
	matched := ""

	if rule.CaseSensitive {
		for _, allowed := range rule.AllowedValues {
			if value == strings.TrimSpace(allowed) {
				matched = allowed
				break
			}
		}
	} else {
		lower := strings.ToLower(value)
		for _, allowed := range rule.AllowedValues {
			if lower == strings.ToLower(strings.TrimSpace(allowed)) {
				matched = allowed
				break
			}
		}
	}

	if matched == "" && rule.FuzzyMatch {
		matched = fuzzyWhitelistMatch(value, rule.AllowedValues, logf)
	}

	if matched == "" {
		result.Violations = append(result.Violations,
			fmt.Sprintf("%s: value '%s' not in approved list. %s", v.label(name), value, rule.ErrorMessage))
		result.Details[name] = FieldValidation{
			Status: RuleStatusFailed,
			Value:  value,
			Reason: rule.ErrorMessage,
		}
		logf(fmt.Sprintf("Whitelist validation failed: '%s' not approved", value))
		return
	}

	result.Details[name] = FieldValidation{
		Status:       RuleStatusPassed,
		Value:        value,
		MatchedValue: matched,
	}
	result.FieldsValidated++
	logf(fmt.Sprintf("Whitelist validation passed: '%s' is approved", value))
}

// fuzzyWhitelistMatch tries, per allowed value in order: substring
// containment in either direction, then word overlap where at least two
// shared tokens longer than 3 characters are required. The first allowed
// value satisfying either strategy wins.
func fuzzyWhitelistMatch(value string, allowedValues []string, logf JobLogFunc) string {
	normValue := strings.ToLower(strings.TrimSpace(value))
	valueWords := tokenSet(normValue)

	for _, allowed := range allowedValues {
		normAllowed := strings.ToLower(strings.TrimSpace(allowed))

		if strings.Contains(normAllowed, normValue) || strings.Contains(normValue, normAllowed) {
			logf(fmt.Sprintf("Fuzzy match (substring): '%s' ~ '%s'", value, allowed))
			return allowed
		}

		significant := 0
		for word := range tokenSet(normAllowed) {
			if len(word) > 3 && valueWords[word] {
				significant++
			}
		}
		if significant >= 2 {
			logf(fmt.Sprintf("Fuzzy match (word overlap): '%s' ~ '%s'", value, allowed))
			return allowed
		}
	}
	return ""
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(s) {
		set[word] = true
	}
	return set
}
