package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultEdamamBaseURL = "https://api.edamam.com"

// EdamamClient queries the Edamam nutrition-data endpoint with a natural
// language ingredient line such as "butter 100 grams".
type EdamamClient struct {
	AppID      string
	AppKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type edamamResponse struct {
	Calories       float64 `json:"calories"`
	TotalWeight    float64 `json:"totalWeight"`
	TotalNutrients map[string]struct {
		Quantity float64 `json:"quantity"`
		Unit     string  `json:"unit"`
	} `json:"totalNutrients"`
}

func (c *EdamamClient) LookupNutrients(ctx context.Context, name string, grams float64) (Nutrients, error) {
	if strings.TrimSpace(c.AppID) == "" || strings.TrimSpace(c.AppKey) == "" {
		return Nutrients{}, fmt.Errorf("%w: missing Edamam credentials", ErrLookupFailure)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultEdamamBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	q := url.Values{}
	q.Set("app_id", c.AppID)
	q.Set("app_key", c.AppKey)
	q.Set("ingr", ingredientLine(name, grams))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/nutrition-data?"+q.Encode(), nil)
	if err != nil {
		return Nutrients{}, fmt.Errorf("%w: create Edamam request: %w", ErrLookupFailure, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Nutrients{}, fmt.Errorf("%w: call Edamam: %w", ErrLookupFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Nutrients{}, fmt.Errorf("%w: read Edamam response: %w", ErrLookupFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Nutrients{}, fmt.Errorf("%w: Edamam returned status %d", ErrLookupFailure, resp.StatusCode)
	}

	var parsed edamamResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Nutrients{}, fmt.Errorf("%w: decode Edamam response: %w", ErrLookupFailure, err)
	}
	// Edamam answers 200 with an empty analysis for lines it cannot parse.
	if parsed.TotalWeight <= 0 {
		return Nutrients{}, fmt.Errorf("%w: Edamam did not recognize %q", ErrLookupFailure, name)
	}

	out := Nutrients{
		Calories: int(math.Round(parsed.Calories)),
		CarbsG:   parsed.TotalNutrients["CHOCDF"].Quantity,
		FatG:     parsed.TotalNutrients["FAT"].Quantity,
		ProteinG: parsed.TotalNutrients["PROCNT"].Quantity,
	}
	if !out.valid() {
		return Nutrients{}, fmt.Errorf("%w: Edamam returned invalid values for %q", ErrLookupFailure, name)
	}
	return out, nil
}

func ingredientLine(name string, grams float64) string {
	return strings.TrimSpace(name) + " " + strconv.FormatFloat(grams, 'f', -1, 64) + " grams"
}
