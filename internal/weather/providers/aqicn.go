package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

const aqicnBaseURL = "https://api.waqi.info"

// AQICNProvider implements the weather.AirQualityProvider interface for the
// World Air Quality Index geo feed.
type AQICNProvider struct {
	token   string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewAQICNProvider(httpCfg HTTPClientConfig, token string) *AQICNProvider {
	return &AQICNProvider{
		token:   token,
		baseURL: aqicnBaseURL,
		httpCfg: httpCfg,
		circuit: newCircuitBreaker("aqicn"),
	}
}

// WithBaseURL points the provider at another endpoint.
func (p *AQICNProvider) WithBaseURL(u string) *AQICNProvider {
	p.baseURL = u
	return p
}

func (p *AQICNProvider) Name() string {
	return weather.ProviderAQICN
}

func (p *AQICNProvider) Fetch(ctx context.Context, loc weather.Location) (weather.AirQualityReading, error) {
	if p.token == "" {
		return weather.AirQualityReading{}, fmt.Errorf("aqicn token is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("token", p.token)

		u := fmt.Sprintf("%s/feed/geo:%f;%f/?%s", p.baseURL, loc.Lat, loc.Lon, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	body, err := fetchBody(ctx, p.Name(), p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.AirQualityReading{}, err
	}
	return weather.ParseAirQuality(body)
}
