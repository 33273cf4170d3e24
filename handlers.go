package main

import (
	"encoding/json"
	"fmt"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/driftline/beaconmesh/beacon"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *beacon.StateTracker, registrar *beacon.AutoRegistrar, config *beacon.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasReports bool      `json:"hasReports"`
			HasChart   bool      `json:"hasChart"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasReports: stateTracker.HasReports(),
			HasChart:   stateTracker.GetWorldMap() != nil,
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Resolved scanner positions
	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		reg := registrar.GetRegistration()
		if reg == nil {
			http.Error(w, "No registration available", http.StatusServiceUnavailable)
			return
		}

		type position struct {
			ScannerID   int             `json:"scannerId"`
			Position    beacon.Position `json:"position"`
			Orientation int             `json:"orientation"`
			LastUpdated time.Time       `json:"lastUpdated"`
		}
		positions := make([]position, 0, len(reg.Scanners))
		for id, sr := range reg.Scanners {
			positions = append(positions, position{
				ScannerID:   id,
				Position:    sr.Pose.Translation,
				Orientation: sr.Pose.Orientation,
				LastUpdated: time.Unix(sr.LastUpdated, 0),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(positions); err != nil {
			log.Printf("Error encoding positions: %v", err)
		}
	})

	// Registration coverage against the configured fleet
	mux.HandleFunc("/api/registration/status", func(w http.ResponseWriter, r *http.Request) {
		reg := registrar.GetRegistration()
		if reg == nil {
			http.Error(w, "No registration available", http.StatusServiceUnavailable)
			return
		}

		expected := make([]int, 0, len(config.Scanners))
		for _, sc := range config.Scanners {
			expected = append(expected, sc.ID)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reg.GetStatus(expected)); err != nil {
			log.Printf("Error encoding registration status: %v", err)
		}
	})

	// Assembled chart as JSON
	mux.HandleFunc("/api/map", func(w http.ResponseWriter, r *http.Request) {
		worldMap := stateTracker.GetWorldMap()
		if worldMap == nil {
			http.Error(w, "No chart available", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(worldMap); err != nil {
			log.Printf("Error encoding chart JSON: %v", err)
		}
	})

	// Assembled chart PNG
	mux.HandleFunc("/map.png", func(w http.ResponseWriter, r *http.Request) {
		worldMap := stateTracker.GetWorldMap()
		if worldMap == nil {
			http.Error(w, "No chart available", http.StatusServiceUnavailable)
			return
		}

		renderer := beacon.NewChartRenderer(worldMap)
		applyConfigColors(renderer.Colors, config)

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, renderer.Render()); err != nil {
			log.Printf("Error encoding chart PNG: %v", err)
		}
	})

	// Assembled chart SVG
	mux.HandleFunc("/map.svg", func(w http.ResponseWriter, r *http.Request) {
		worldMap := stateTracker.GetWorldMap()
		if worldMap == nil {
			http.Error(w, "No chart available", http.StatusServiceUnavailable)
			return
		}

		vectorRenderer := beacon.NewVectorRenderer(worldMap)
		applyConfigColors(vectorRenderer.Colors, config)

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vectorRenderer.RenderToSVG(w); err != nil {
			log.Printf("Error encoding chart SVG: %v", err)
		}
	})

	// Assembled chart GeoJSON
	mux.HandleFunc("/map.geojson", func(w http.ResponseWriter, r *http.Request) {
		worldMap := stateTracker.GetWorldMap()
		if worldMap == nil {
			http.Error(w, "No chart available", http.StatusServiceUnavailable)
			return
		}

		data, err := beacon.MarshalWorldMapGeoJSON(worldMap, configColorMap(config))
		if err != nil {
			log.Printf("Error encoding chart GeoJSON: %v", err)
			http.Error(w, "Encoding error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing chart GeoJSON: %v", err)
		}
	})

	// Default route serves HTML page embedding the SVG chart
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>beaconmesh</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/map.svg" alt="Assembled Chart">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// configColorMap extracts scanner hex colors from config.
func configColorMap(config *beacon.Config) map[int]string {
	colors := make(map[int]string)
	if config == nil {
		return colors
	}
	for _, sc := range config.Scanners {
		if sc.Color != "" {
			colors[sc.ID] = sc.Color
		}
	}
	return colors
}

// applyConfigColors overrides renderer palette entries with scanner colors
// from config.
func applyConfigColors(colors map[int]beacon.ScannerColor, config *beacon.Config) {
	if config == nil {
		return
	}

	for _, sc := range config.Scanners {
		c, ok := parseHexColor(sc.Color)
		if !ok {
			continue
		}
		colors[sc.ID] = beacon.ScannerColor{
			Beacon:  color.NRGBA{c.R, c.G, c.B, 150}, // Semi-transparent for beacons
			Scanner: darkenColor(c),                  // Darker version for the marker
		}
	}
}

// parseHexColor parses a #rrggbb color string.
func parseHexColor(s string) (color.NRGBA, bool) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.NRGBA{}, false
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{r, g, b, 255}, true
}

// darkenColor creates a darker version of a color for scanner markers
func darkenColor(c color.NRGBA) color.NRGBA {
	factor := 0.5
	return color.NRGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: 255,
	}
}
