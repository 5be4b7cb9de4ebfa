package delivery

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/delivery_config.schema.json
var configSchema string

const configSchemaURL = "https://storefront.local/schemas/delivery_config.schema.json"

// Scalar is a JSON string or number kept as its literal text. Operators edit the
// delivery document by hand, so numeric fields are parsed at match time rather
// than rejected at decode time.
type Scalar string

// UnmarshalJSON accepts strings, numbers and null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(strings.TrimSpace(str))
	default:
		*s = Scalar(data)
	}
	return nil
}

// MarshalJSON writes numeric text as a JSON number and anything else as a string.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(s), 64); err == nil {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

// Int parses the scalar as a base-10 integer.
func (s Scalar) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(s), 10, 64)
	return n, err == nil
}

// Integer parses the scalar as a whole number. Integral floats such as 1700.0
// or 1.7e3 are accepted.
func (s Scalar) Integer() (int64, bool) {
	if n, ok := s.Int(); ok {
		return n, true
	}
	f, err := strconv.ParseFloat(string(s), 64)
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// WholeAmount parses the scalar as a non-negative whole amount. Integral floats
// such as 8000.0 are accepted.
func (s Scalar) WholeAmount() (int64, bool) {
	n, ok := s.Integer()
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

// Range is an inclusive numeric postal code range.
type Range struct {
	From Scalar `json:"from"`
	To   Scalar `json:"to"`
}

// ShippingRule maps postal codes to a shipping cost and label.
type ShippingRule struct {
	PostalCodes []Scalar `json:"postalCodes"`
	Ranges      []Range  `json:"ranges"`
	Cost        Scalar   `json:"cost"`
	Label       string   `json:"label"`
}

// InstallationZones marks postal codes eligible for on-site installation.
type InstallationZones struct {
	Label              string   `json:"label"`
	EnabledPostalCodes []Scalar `json:"enabledPostalCodes"`
	EnabledRanges      []Range  `json:"enabledRanges"`
}

// FactoryPickup describes the pickup alternative.
type FactoryPickup struct {
	Address string `json:"address"`
	Note    string `json:"note"`
}

// Config is the operator-edited delivery document. A loaded Config is never
// mutated; reloads produce a new value.
type Config struct {
	Currency                     string            `json:"currency"`
	InstallationBaseCost         int64             `json:"installationBaseCost"`
	InstallationComplexNotice    string            `json:"installationComplexNotice"`
	UnsupportedPostalCodeMessage string            `json:"unsupportedPostalCodeMessage"`
	FactoryPickup                FactoryPickup     `json:"factoryPickup"`
	ShippingRules                []ShippingRule    `json:"shippingRules"`
	InstallationZones            InstallationZones `json:"installationZones"`
}

// DefaultConfig is used when no delivery document exists on disk.
func DefaultConfig() *Config {
	return &Config{
		Currency:                     "ARS",
		InstallationBaseCost:         25000,
		InstallationComplexNotice:    "Las instalaciones complejas (muebles a medida, amurados o en altura) se cotizan aparte.",
		UnsupportedPostalCodeMessage: "Todavía no tenemos envío configurado para tu código postal. Escribinos y lo coordinamos.",
		FactoryPickup: FactoryPickup{
			Address: "Av. Gaona 4200, Ciudad Jardín, Buenos Aires",
			Note:    "Retiro de lunes a viernes de 9 a 17 hs, coordinando previamente.",
		},
		ShippingRules: []ShippingRule{
			{
				Ranges: []Range{{From: "1000", To: "1499"}},
				Cost:   "6000",
				Label:  "CABA",
			},
			{
				Ranges: []Range{{From: "1700", To: "1799"}},
				Cost:   "8000",
				Label:  "Zona Oeste",
			},
			{
				Ranges: []Range{{From: "1600", To: "1699"}},
				Cost:   "9000",
				Label:  "Zona Norte",
			},
			{
				Ranges: []Range{{From: "1800", To: "1899"}},
				Cost:   "9000",
				Label:  "Zona Sur",
			},
			{
				Ranges: []Range{{From: "1900", To: "1999"}},
				Cost:   "14000",
				Label:  "La Plata y alrededores",
			},
		},
		InstallationZones: InstallationZones{
			Label:         "CABA y Zona Oeste",
			EnabledRanges: []Range{{From: "1000", To: "1499"}, {From: "1700", To: "1799"}},
		},
	}
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(configSchemaURL, strings.NewReader(configSchema)); err != nil {
		return nil, fmt.Errorf("delivery schema load failed: %w", err)
	}
	schema, err := c.Compile(configSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("delivery schema compile failed: %w", err)
	}
	return schema, nil
}

// ParseConfig validates data against the delivery schema and decodes it.
func ParseConfig(data []byte, schema *jsonschema.Schema) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid delivery config JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("delivery config schema validation failed: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode delivery config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads and validates a delivery document. A missing file yields
// DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery config: %w", err)
	}
	return ParseConfig(data, schema)
}

// ValidateDocument checks data against the schema and decodes it. Unlike
// LoadConfig there is no default to fall back to.
func ValidateDocument(data []byte) (*Config, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return ParseConfig(data, schema)
}

// Lint lists entries that pass the schema but can never work at quote time,
// such as a cost that is not a whole amount or a range bound that is not an
// integer.
func (c *Config) Lint() []string {
	var problems []string
	checkRanges := func(where string, ranges []Range) {
		for j, r := range ranges {
			from, okFrom := r.From.Integer()
			to, okTo := r.To.Integer()
			switch {
			case !okFrom || !okTo:
				problems = append(problems, fmt.Sprintf("%s.ranges[%d]: bounds must be whole numbers (%q..%q)", where, j, r.From, r.To))
			case from > to:
				problems = append(problems, fmt.Sprintf("%s.ranges[%d]: from %d is greater than to %d", where, j, from, to))
			}
		}
	}

	for i, rule := range c.ShippingRules {
		where := fmt.Sprintf("shippingRules[%d]", i)
		if _, ok := rule.Cost.WholeAmount(); !ok {
			problems = append(problems, fmt.Sprintf("%s (%s): cost %q is not a non-negative whole amount", where, rule.Label, rule.Cost))
		}
		if len(rule.PostalCodes) == 0 && len(rule.Ranges) == 0 {
			problems = append(problems, fmt.Sprintf("%s (%s): matches no postal code", where, rule.Label))
		}
		checkRanges(where, rule.Ranges)
	}
	checkRanges("installationZones", c.InstallationZones.EnabledRanges)

	if c.InstallationBaseCost < 0 {
		problems = append(problems, "installationBaseCost is negative")
	}
	return problems
}
