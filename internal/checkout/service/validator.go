package service

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/givingdesk/internal/checkout/domain"
	"github.com/smallbiznis/givingdesk/internal/config"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
)

var fieldMessages = map[string]string{
	"amount":    "Please enter a valid donation amount",
	"category":  "Please select a valid donation category",
	"type":      "Please select a valid donation type",
	"frequency": "Please select a valid donation frequency",
	"email":     "Please enter a valid email address",
}

// requestValidator applies struct tags plus the amount and category rules
// from the current giving config.
type requestValidator struct {
	validate *validator.Validate
	giving   *config.GivingConfigHolder
}

func newRequestValidator(giving *config.GivingConfigHolder) *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &requestValidator{validate: v, giving: giving}
}

func (v *requestValidator) checkout(req *domain.CheckoutRequest) error {
	normalize(&req.Category, &req.Email)
	fields := v.structFields(req)
	cfg := v.giving.Get()

	v.amountRules(fields, req.Amount, cfg)
	v.categoryRule(fields, req.Category, cfg)
	if req.Type == donationdomain.TypeRecurring && req.Frequency == "" {
		fields["frequency"] = "Frequency is required for recurring donations"
	}
	if req.Frequency != "" && !cfg.HasFrequency(string(req.Frequency)) {
		if _, set := fields["frequency"]; !set {
			fields["frequency"] = fieldMessages["frequency"]
		}
	}
	return asValidationError(fields)
}

func (v *requestValidator) subscription(req *domain.SubscriptionRequest) error {
	normalize(&req.Category, &req.Email)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	fields := v.structFields(req)
	cfg := v.giving.Get()

	v.amountRules(fields, req.Amount, cfg)
	v.categoryRule(fields, req.Category, cfg)
	if req.Frequency == "" {
		fields["frequency"] = "Frequency is required for recurring donations"
	} else if !cfg.HasFrequency(string(req.Frequency)) {
		fields["frequency"] = fieldMessages["frequency"]
	}
	if req.Email == "" && req.CustomerID == "" {
		if _, set := fields["email"]; !set {
			fields["email"] = "Email or customer ID is required"
		}
	}
	return asValidationError(fields)
}

func (v *requestValidator) amount(amount float64) error {
	fields := map[string]string{}
	v.amountRules(fields, amount, v.giving.Get())
	return asValidationError(fields)
}

func (v *requestValidator) structFields(req any) map[string]string {
	fields := map[string]string{}
	err := v.validate.Struct(req)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fields
	}
	for _, fe := range verrs {
		name := fe.Field()
		if msg, ok := fieldMessages[name]; ok {
			fields[name] = msg
			continue
		}
		fields[name] = fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
	return fields
}

func (v *requestValidator) amountRules(fields map[string]string, amount float64, cfg config.GivingConfig) {
	switch {
	case math.IsNaN(amount) || math.IsInf(amount, 0):
		fields["amount"] = fieldMessages["amount"]
	case amount < cfg.MinAmount:
		fields["amount"] = "Minimum donation amount is " + formatDollars(cfg.MinAmount)
	case amount > cfg.MaxAmount:
		fields["amount"] = "Maximum donation amount is " + formatDollars(cfg.MaxAmount)
	case !hasAtMostTwoDecimals(amount):
		fields["amount"] = "Amount can have at most 2 decimal places"
	}
}

func (v *requestValidator) categoryRule(fields map[string]string, category string, cfg config.GivingConfig) {
	if category != "" && !cfg.HasCategory(category) {
		fields["category"] = fieldMessages["category"]
	}
}

func normalize(category, email *string) {
	*category = strings.TrimSpace(*category)
	*email = strings.TrimSpace(*email)
}

func asValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &domain.ValidationError{Fields: fields}
}

func hasAtMostTwoDecimals(amount float64) bool {
	cents := amount * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// toCents rounds to the nearest cent so 19.99 never becomes 1998.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// formatDollars renders 10000 as "$10,000.00" and 0.5 as "$0.50".
func formatDollars(amount float64) string {
	raw := strconv.FormatFloat(amount, 'f', 2, 64)
	whole, frac, _ := strings.Cut(raw, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String() + "." + frac
}
