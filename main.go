package main

import (
	"flag"
	"fmt"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile        = flag.String("config", "config.yaml", "Path to configuration file")
	reportFile        = flag.String("report", "", "Path to a combined scanner report file")
	parseOnly         = flag.Bool("parse-only", false, "Parse scanner reports and exit (test mode)")
	registerOnly      = flag.Bool("register", false, "Run registration on scanner reports and exit")
	renderOnly        = flag.Bool("render", false, "Render assembled chart and exit")
	referenceScanner  = flag.Int("reference", -1, "Override reference scanner id (default: from config or lowest id)")
	matchThreshold    = flag.Int("threshold", 0, "Override overlap vote threshold (default: from config or 12)")
	outputFile        = flag.String("output", "chart.png", "Output file for --render mode")
	dataDir           = flag.String("data-dir", ".", "Directory containing scanner report archives")
	registrationCache = flag.String("registration-cache", ".registration-cache.json", "Path to registration cache file")
	mqttMode          = flag.Bool("mqtt", false, "Run MQTT service mode for live scanner reports")
	httpMode          = flag.Bool("http", false, "Enable HTTP server for serving chart images")
	httpPort          = flag.Int("http-port", 8080, "HTTP server port (default 8080)")
	renderFormat      = flag.String("format", "raster", "Render format: raster, vector, geojson, or both")
)

func main() {
	flag.Parse()
	fmt.Printf("beaconmesh version: %s\n", Version)

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:        *configFile,
		ReportFile:        *reportFile,
		DataDir:           *dataDir,
		RegistrationCache: *registrationCache,
		ReferenceScanner:  *referenceScanner,
		MatchThreshold:    *matchThreshold,
		OutputFile:        *outputFile,
		RenderFormat:      *renderFormat,
		HttpPort:          *httpPort,
		MqttMode:          *mqttMode,
		HttpMode:          *httpMode,
	})

	if *parseOnly {
		app.RunParseOnly()
		return
	}

	if *registerOnly {
		app.RunRegistration()
		return
	}

	if *renderOnly {
		app.RunRender()
		return
	}

	if *mqttMode || *httpMode {
		app.RunService()
		return
	}

	fmt.Println("beaconmesh service starting...")
	fmt.Println("Use --parse-only to test report parsing")
	fmt.Println("Use --register to run scanner registration")
	fmt.Println("Use --render to output the assembled chart")
	fmt.Println("Use --mqtt to run MQTT service mode")
	fmt.Println("Use --http to run HTTP server mode")
	fmt.Println("Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Println("\nConfiguration:")
	fmt.Println("  config.yaml - MQTT settings and scanner fleet definition")
	fmt.Println("  .registration-cache.json - Auto-computed scanner poses (cached)")
}
