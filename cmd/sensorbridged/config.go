package main

import (
	"fmt"
	"strings"

	"github.com/akhenakh/sensorbridge/decoder"
)

type appConfig struct {
	ID       string
	Encoding decoder.Encoding
	APIKey   string
}

// parseApps parses a comma separated list of app:encoding[:apiKey].
func parseApps(s string) ([]appConfig, error) {
	var res []appConfig
	seen := make(map[string]bool)
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		parts := strings.SplitN(e, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid application %q, expecting app:encoding[:apiKey]", e)
		}
		enc, err := decoder.ParseEncoding(parts[1])
		if err != nil {
			return nil, fmt.Errorf("application %s: %w", parts[0], err)
		}
		if seen[parts[0]] {
			return nil, fmt.Errorf("application %s declared twice", parts[0])
		}
		seen[parts[0]] = true

		app := appConfig{ID: parts[0], Encoding: enc}
		if len(parts) == 3 {
			app.APIKey = parts[2]
		}
		res = append(res, app)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("no application configured")
	}
	return res, nil
}
