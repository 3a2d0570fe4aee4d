package remittance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT MODEL - How revenue is split between driver and vehicle owner
// =============================================================================

type PaymentModel string

const (
	// ModelOwnerPays: the owner keeps revenue and pays the driver a percentage.
	ModelOwnerPays PaymentModel = "OWNER_PAYS"
	// ModelDriverRemits: the driver keeps revenue and remits a fixed amount per period.
	ModelDriverRemits PaymentModel = "DRIVER_REMITS"
	// ModelHybrid: fixed base amount plus a commission on revenue.
	ModelHybrid PaymentModel = "HYBRID"
)

// ParsePaymentModel parses a model name case-insensitively.
func ParsePaymentModel(s string) (PaymentModel, error) {
	switch m := PaymentModel(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModelOwnerPays, ModelDriverRemits, ModelHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown payment model %q", ErrInvalidPaymentConfig, s)
	}
}

// =============================================================================
// PAYMENT CONFIG - One variant per payment model
// =============================================================================

// PaymentConfig is the configuration attached to a vehicle's payment model.
// Implementations: OwnerPaysConfig, DriverRemitsConfig, HybridConfig.
type PaymentConfig interface {
	Model() PaymentModel
	Validate() error
}

// OwnerPaysConfig: the driver earns Percentage of revenue, settled on ClosingDay.
type OwnerPaysConfig struct {
	Percentage decimal.Decimal `json:"percentage"`
	ClosingDay string          `json:"closingDay"`
}

// DriverRemitsConfig: the driver remits Amount every Frequency.
type DriverRemitsConfig struct {
	Amount    decimal.Decimal `json:"amount"`
	Frequency Frequency       `json:"frequency"`
}

// HybridConfig: the driver remits BaseAmount plus CommissionPercentage of revenue.
// Frequency is optional; without it there is no period to evaluate.
type HybridConfig struct {
	BaseAmount           decimal.Decimal `json:"baseAmount"`
	CommissionPercentage decimal.Decimal `json:"commissionPercentage"`
	Frequency            Frequency       `json:"frequency,omitempty"`
}

func (OwnerPaysConfig) Model() PaymentModel    { return ModelOwnerPays }
func (DriverRemitsConfig) Model() PaymentModel { return ModelDriverRemits }
func (HybridConfig) Model() PaymentModel       { return ModelHybrid }

var hundred = decimal.NewFromInt(100)

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

func (c OwnerPaysConfig) Validate() error {
	if !validPercentage(c.Percentage) {
		return fmt.Errorf("%w: percentage must be within 0-100, got %s", ErrInvalidPaymentConfig, c.Percentage)
	}
	if _, ok := ParseWeekday(c.ClosingDay); !ok {
		return fmt.Errorf("%w: invalid closing day %q", ErrInvalidPaymentConfig, c.ClosingDay)
	}
	return nil
}

// ParseWeekday accepts English weekday names in any case ("friday", "FRIDAY").
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.TrimSpace(s)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, true
		}
	}
	return time.Sunday, false
}

func (c DriverRemitsConfig) Validate() error {
	if c.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative, got %s", ErrInvalidPaymentConfig, c.Amount)
	}
	if !c.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidPaymentConfig, c.Frequency)
	}
	return nil
}

func (c HybridConfig) Validate() error {
	if c.BaseAmount.IsNegative() {
		return fmt.Errorf("%w: base amount must not be negative, got %s", ErrInvalidPaymentConfig, c.BaseAmount)
	}
	if !validPercentage(c.CommissionPercentage) {
		return fmt.Errorf("%w: commission must be within 0-100, got %s", ErrInvalidPaymentConfig, c.CommissionPercentage)
	}
	if c.Frequency != "" && !c.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidPaymentConfig, c.Frequency)
	}
	return nil
}

// FrequencyOf returns the remittance frequency configured for cfg.
// OwnerPays and configs without a frequency return ("", false).
func FrequencyOf(cfg PaymentConfig) (Frequency, bool) {
	switch c := cfg.(type) {
	case DriverRemitsConfig:
		return c.Frequency, c.Frequency != ""
	case HybridConfig:
		return c.Frequency, c.Frequency != ""
	default:
		return "", false
	}
}

// =============================================================================
// JSON CODEC - Configs are stored as JSON next to the model name
// =============================================================================

// DecodePaymentConfig decodes raw JSON into the variant for model.
// Empty input (or JSON null) decodes to a nil config.
func DecodePaymentConfig(model PaymentModel, raw []byte) (PaymentConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch model {
	case ModelOwnerPays:
		var c OwnerPaysConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentConfig, err)
		}
		return c, nil
	case ModelDriverRemits:
		var c DriverRemitsConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentConfig, err)
		}
		return c, nil
	case ModelHybrid:
		var c HybridConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentConfig, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown payment model %q", ErrInvalidPaymentConfig, model)
	}
}

// EncodePaymentConfig is the inverse of DecodePaymentConfig.
func EncodePaymentConfig(cfg PaymentConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
