package core

import (
	"encoding/json"
	"fmt"
)

type (
	// UpkeepHalf is the household cost record for one half of a year.
	UpkeepHalf struct {
		Year      int              `json:"year"`
		Period    int              `json:"period"`
		Salary    Money            `json:"salary"`
		Savings   *Money           `json:"savings,omitempty"`
		Groceries []Grocery        `json:"groceries,omitempty"`
		Pet       map[string]Money `json:"pet,omitempty"`
		Housing   Housing          `json:"housing"`
		Car       *Car             `json:"car,omitempty"`
	}

	Grocery struct {
		Calories float64 `json:"calories"`
		Price    Money   `json:"price"`
	}

	// Housing holds the dwelling area next to an open set of monthly cost
	// fields (rent, heating, insurance...). On the wire all of them are
	// siblings of "area".
	Housing struct {
		Area  float64
		Costs map[string]Money
	}

	Car struct {
		Maintenance Money    `json:"maintenance"`
		Insurance   Money    `json:"insurance"`
		Fuel        *Money   `json:"fuel,omitempty"`
		Consumption *float64 `json:"consumption,omitempty"`
		Km          *float64 `json:"km,omitempty"`
		KmPrice     *Money   `json:"kmPrice,omitempty"`
		Loan        *Money   `json:"loan,omitempty"`
	}
)

func (h Housing) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Costs)+1)
	for k, v := range h.Costs {
		out[k] = v
	}
	out["area"] = h.Area
	return json.Marshal(out)
}

func (h *Housing) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: housing: %v", ErrMalformedInput, err)
	}
	h.Area = 0
	h.Costs = make(map[string]Money, len(raw))
	for k, v := range raw {
		if k == "area" {
			if err := json.Unmarshal(v, &h.Area); err != nil {
				return fmt.Errorf("%w: housing area: %v", ErrMalformedInput, err)
			}
			continue
		}
		var m Money
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("%w: housing cost %q: %v", ErrMalformedInput, k, err)
		}
		h.Costs[k] = m
	}
	return nil
}

// Validate checks the period and every amount. Salary is required; other
// amounts may be left out.
func (u UpkeepHalf) Validate() error {
	if u.Period != 1 && u.Period != 2 {
		return fmt.Errorf("%w: upkeep %d has period %d", ErrMalformedInput, u.Year, u.Period)
	}
	if err := u.Salary.Validate(); err != nil {
		return fmt.Errorf("upkeep %d/%d salary: %w", u.Year, u.Period, err)
	}

	optional := map[string]*Money{"savings": u.Savings}
	for i := range u.Groceries {
		optional[fmt.Sprintf("groceries[%d]", i)] = &u.Groceries[i].Price
	}
	for k, v := range u.Pet {
		optional["pet "+k] = &v
	}
	for k, v := range u.Housing.Costs {
		optional["housing "+k] = &v
	}
	if c := u.Car; c != nil {
		optional["car maintenance"] = &c.Maintenance
		optional["car insurance"] = &c.Insurance
		optional["car fuel"] = c.Fuel
		optional["car kmPrice"] = c.KmPrice
		optional["car loan"] = c.Loan
	}
	for name, m := range optional {
		if m == nil || *m == (Money{}) {
			continue
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("upkeep %d/%d %s: %w", u.Year, u.Period, name, err)
		}
	}
	return nil
}
