// Package octopus is the adapter for the Octopus Energy REST API. It fetches
// account, product, tariff rate and consumption payloads, and normalizes them
// into the strict shapes the engine works with; nothing provider-shaped
// leaks past this package.
package octopus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	consumptionPageSize = 25000
	ratePageSize        = 1500
)

type Client struct {
	// BaseURL is the API prefix, e.g. https://api.octopus.energy/v1.
	BaseURL string
	Key     string

	// HTTPClient defaults to http.DefaultClient; the run command installs a
	// caching transport here.
	HTTPClient *http.Client
}

type Account struct {
	Number     string     `json:"number"`
	Properties []Property `json:"properties"`
}

type Property struct {
	ID                     int          `json:"id"`
	AddressLine1           string       `json:"address_line_1"`
	Postcode               string       `json:"postcode"`
	ElectricityMeterPoints []MeterPoint `json:"electricity_meter_points"`
	GasMeterPoints         []MeterPoint `json:"gas_meter_points"`
}

// MeterPoint covers both electricity (MPAN) and gas (MPRN) meter points;
// only one of the two identifiers is populated.
type MeterPoint struct {
	MPAN       string      `json:"mpan"`
	MPRN       string      `json:"mprn"`
	IsExport   bool        `json:"is_export"`
	Meters     []Meter     `json:"meters"`
	Agreements []Agreement `json:"agreements"`
}

type Meter struct {
	SerialNumber string `json:"serial_number"`
}

type Agreement struct {
	TariffCode string     `json:"tariff_code"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidTo    *time.Time `json:"valid_to"`
}

// Product is the subset of a product payload needed to find the rate links
// for a tariff. Each tariff map is keyed region variant -> payment method.
type Product struct {
	Code                             string                              `json:"code"`
	SingleRegisterElectricityTariffs map[string]map[string]TariffDetails `json:"single_register_electricity_tariffs"`
	DualRegisterElectricityTariffs   map[string]map[string]TariffDetails `json:"dual_register_electricity_tariffs"`
	SingleRegisterGasTariffs         map[string]map[string]TariffDetails `json:"single_register_gas_tariffs"`
}

type TariffDetails struct {
	Code  string `json:"code"`
	Links []Link `json:"links"`
}

type Link struct {
	Href   string `json:"href"`
	Method string `json:"method"`
	Rel    string `json:"rel"`
}

// Rate link rels published on tariff details.
const (
	RelStandardUnitRates = "standard_unit_rates"
	RelDayUnitRates      = "day_unit_rates"
	RelNightUnitRates    = "night_unit_rates"
	RelStandingCharges   = "standing_charges"
)

type Rate struct {
	ValueExcVAT   float64    `json:"value_exc_vat"`
	ValueIncVAT   float64    `json:"value_inc_vat"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidTo       *time.Time `json:"valid_to"`
	PaymentMethod *string    `json:"payment_method"`
}

type ratePage struct {
	Next    string `json:"next"`
	Results []Rate `json:"results"`
}

type Reading struct {
	Consumption   float64   `json:"consumption"`
	IntervalStart time.Time `json:"interval_start"`
	IntervalEnd   time.Time `json:"interval_end"`
}

type consumptionPage struct {
	Next    string    `json:"next"`
	Results []Reading `json:"results"`
}

// GroupBy maps a resolution in minutes onto the API's consumption group_by
// parameter. Half-hourly is the native resolution and needs no grouping.
func GroupBy(resolutionMinutes int) (string, error) {
	switch resolutionMinutes {
	case 30:
		return "", nil
	case 60:
		return "hour", nil
	case 60 * 24:
		return "day", nil
	case 60 * 24 * 7:
		return "week", nil
	default:
		return "", fmt.Errorf("invalid resolution: %d minutes", resolutionMinutes)
	}
}

func (c *Client) Account(ctx context.Context, number string) (Account, error) {
	a := Account{}
	return a, c.get(ctx, fmt.Sprintf("accounts/%s/", number), nil, &a)
}

func (c *Client) Product(ctx context.Context, code string) (Product, error) {
	p := Product{}
	return p, c.get(ctx, fmt.Sprintf("products/%s/", code), nil, &p)
}

// Consumption returns a meter's readings over [from, to), oldest first,
// following pagination. groupBy is the value from GroupBy.
func (c *Client) Consumption(ctx context.Context, kind string, pointRef, serial string, from, to time.Time, groupBy string) ([]Reading, error) {
	path := fmt.Sprintf("%s-meter-points/%s/meters/%s/consumption/", kind, pointRef, serial)
	args := url.Values{
		"period_from": {from.UTC().Format(time.RFC3339)},
		"period_to":   {to.UTC().Format(time.RFC3339)},
		"page_size":   {fmt.Sprint(consumptionPageSize)},
		"order_by":    {"period"},
	}
	if groupBy != "" {
		args.Set("group_by", groupBy)
	}

	var out []Reading
	next := c.resolve(path, args)
	for next != "" {
		page := consumptionPage{}
		if err := c.get(ctx, next, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		next = page.Next
	}
	return out, nil
}

// Rates follows a tariff detail link and returns every published rate
// overlapping [from, to), following pagination.
func (c *Client) Rates(ctx context.Context, href string, from, to time.Time) ([]Rate, error) {
	args := url.Values{
		"period_from": {from.UTC().Format(time.RFC3339)},
		"period_to":   {to.UTC().Format(time.RFC3339)},
		"page_size":   {fmt.Sprint(ratePageSize)},
	}

	var out []Rate
	next := c.resolve(href, args)
	for next != "" {
		page := ratePage{}
		if err := c.get(ctx, next, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		next = page.Next
	}
	return out, nil
}

// resolve turns a path or absolute link into a full URL with query args.
func (c *Client) resolve(p string, args url.Values) string {
	u := p
	if !strings.HasPrefix(p, "http") {
		u = strings.TrimSuffix(c.BaseURL, "/") + "/" + p
	}
	if len(args) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + args.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, u string, args url.Values, out any) error {
	if !strings.HasPrefix(u, "http") || len(args) > 0 {
		u = c.resolve(u, args)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("NewRequestWithContext: %v", err)
	}
	req.Header.Add("Authorization", fmt.Sprintf("Basic %s", base64.StdEncoding.EncodeToString([]byte(c.Key+":"))))

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	rsp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("Do: %v", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return fmt.Errorf("Do(%q): unexpected status %s", u, rsp.Status)
	}
	b, err := io.ReadAll(rsp.Body)
	if err != nil {
		return fmt.Errorf("Read(%s): %v", u, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("Unmarshal(%s): %v", u, err)
	}
	return nil
}
