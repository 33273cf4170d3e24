package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/driftline/beaconmesh/beacon"
)

// AppOptions carries the CLI flag values into the App.
type AppOptions struct {
	ConfigFile        string
	ReportFile        string
	DataDir           string
	RegistrationCache string
	ReferenceScanner  int
	MatchThreshold    int
	OutputFile        string
	RenderFormat      string
	HttpPort          int
	MqttMode          bool
	HttpMode          bool
}

// App encapsulates the application state and dependencies
type App struct {
	Config       *beacon.Config
	Registration *beacon.RegistrationData
	StateTracker *beacon.StateTracker
	MQTTClient   *beacon.MQTTClient
	Publisher    *beacon.Publisher

	ConfigFile        string
	ReportFile        string
	DataDir           string
	RegistrationCache string
	ReferenceScanner  int
	MatchThreshold    int
	OutputFile        string
	RenderFormat      string
	HttpPort          int
	MqttMode          bool
	HttpMode          bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: beacon.NewStateTracker(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ReportFile = opts.ReportFile
	a.DataDir = opts.DataDir
	a.RegistrationCache = opts.RegistrationCache
	a.ReferenceScanner = opts.ReferenceScanner
	a.MatchThreshold = opts.MatchThreshold
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadScanners loads scanner reports from the --report file when given,
// otherwise from ScannerReport-*.txt archives in the data directory.
func (a *App) loadScanners() []*beacon.Scanner {
	if a.ReportFile != "" {
		scanners, err := beacon.ParseReportFile(a.ReportFile)
		if err != nil {
			log.Fatalf("Error parsing report %s: %v", a.ReportFile, err)
		}
		return scanners
	}

	pattern := filepath.Join(a.DataDir, "ScannerReport-*.txt")
	files, err := filepath.Glob(pattern)
	if err != nil {
		log.Fatalf("Error finding report files: %v", err)
	}

	if len(files) == 0 {
		// Try current directory
		files, _ = filepath.Glob("ScannerReport-*.txt")
	}

	if len(files) == 0 {
		log.Fatal("No ScannerReport-*.txt files found (or pass --report)")
	}

	var scanners []*beacon.Scanner
	seen := make(map[int]bool)
	for _, file := range files {
		parsed, err := beacon.ParseReportFile(file)
		if err != nil {
			fmt.Printf("Error loading %s: %v\n", file, err)
			continue
		}
		for _, s := range parsed {
			if seen[s.ID] {
				fmt.Printf("Skipping duplicate scanner %d from %s\n", s.ID, file)
				continue
			}
			seen[s.ID] = true
			scanners = append(scanners, s)
		}
	}

	if len(scanners) == 0 {
		log.Fatal("No parseable scanner reports found")
	}
	return scanners
}

// effectiveThreshold resolves the overlap threshold: CLI flag, then config,
// then the built-in default.
func (a *App) effectiveThreshold() int {
	if a.MatchThreshold > 0 {
		return a.MatchThreshold
	}
	if a.Config != nil {
		return a.Config.EffectiveThreshold()
	}
	return beacon.DefaultMatchThreshold
}

// orderScanners moves the reference scanner to the front. The reference id
// comes from the CLI flag, then config, then the lowest scanner id.
func (a *App) orderScanners(scanners []*beacon.Scanner) []*beacon.Scanner {
	sort.Slice(scanners, func(i, j int) bool { return scanners[i].ID < scanners[j].ID })

	ref := a.ReferenceScanner
	if ref < 0 && a.Config != nil && a.Config.Reference != nil {
		ref = *a.Config.Reference
	}
	if ref < 0 {
		return scanners
	}

	for i, s := range scanners {
		if s.ID == ref {
			ordered := make([]*beacon.Scanner, 0, len(scanners))
			ordered = append(ordered, s)
			ordered = append(ordered, scanners[:i]...)
			ordered = append(ordered, scanners[i+1:]...)
			return ordered
		}
	}
	log.Printf("Warning: reference scanner %d not present in reports, using scanner %d", ref, scanners[0].ID)
	return scanners
}

// loadOptionalConfig loads config.yaml if present. Missing config is fine for
// the file-based modes.
func (a *App) loadOptionalConfig() {
	if _, err := os.Stat(a.ConfigFile); err != nil {
		return
	}
	config, err := beacon.LoadConfig(a.ConfigFile)
	if err != nil {
		log.Printf("Warning: Failed to load config file %s: %v", a.ConfigFile, err)
		return
	}
	a.Config = config
	log.Printf("Loaded config from %s", a.ConfigFile)
}

// RunParseOnly parses all scanner reports and prints a summary
func (a *App) RunParseOnly() {
	scanners := a.loadScanners()

	fmt.Printf("Found %d scanner report(s)\n\n", len(scanners))

	for _, s := range scanners {
		fmt.Printf("=== scanner %d ===\n", s.ID)
		fmt.Printf("Beacons: %d\n", len(s.Local))
		if len(s.Local) > 0 {
			fmt.Printf("First: %s, Last: %s\n", s.Local[0], s.Local[len(s.Local)-1])
		}
		fmt.Println()
	}

	summary := beacon.Summarize(scanners)
	fmt.Printf("Total: %d scanners, %d beacon sightings\n", summary.ScannerCount, summary.TotalBeacons)
}

// RunRegistration registers all scanners against the reference and prints
// the resolved poses
func (a *App) RunRegistration() {
	a.loadOptionalConfig()
	scanners := a.orderScanners(a.loadScanners())
	threshold := a.effectiveThreshold()

	fmt.Printf("Found %d scanner report(s)\n", len(scanners))
	fmt.Printf("Reference scanner: %d\n", scanners[0].ID)
	fmt.Printf("Overlap threshold: %d\n\n", threshold)

	registry := beacon.NewRegistry(scanners, threshold)
	if err := registry.Register(); err != nil {
		log.Fatalf("Registration failed: %v", err)
	}

	fmt.Println(strings.Repeat("-", 60))
	for _, s := range registry.Scanners() {
		pose, _ := s.Pose()
		fmt.Printf("scanner %-3d: position %s orientation %d\n", s.ID, pose.Translation, pose.Orientation)
	}
	fmt.Println(strings.Repeat("-", 60))

	worldMap, err := beacon.BuildWorldMap(registry)
	if err != nil {
		log.Fatalf("Error building world map: %v", err)
	}

	fmt.Printf("Distinct beacons: %d\n", worldMap.BeaconCount())
	fmt.Printf("Max scanner separation: %d\n", worldMap.MaxScannerSeparation())

	reg := beacon.NewRegistrationData(registry)
	fmt.Printf("\nSaving registration cache to %s\n", a.RegistrationCache)
	if err := beacon.SaveRegistration(a.RegistrationCache, reg); err != nil {
		log.Printf("Warning: Failed to save registration cache: %v", err)
	} else {
		fmt.Println("Registration cache saved successfully")
	}
}

// RunRender registers all scanners and writes the assembled chart to disk
func (a *App) RunRender() {
	a.loadOptionalConfig()
	scanners := a.orderScanners(a.loadScanners())
	threshold := a.effectiveThreshold()

	fmt.Printf("Found %d scanner report(s)\n", len(scanners))
	fmt.Printf("Reference scanner: %d\n", scanners[0].ID)

	registry := beacon.NewRegistry(scanners, threshold)
	if err := registry.Register(); err != nil {
		log.Fatalf("Registration failed: %v", err)
	}

	worldMap, err := beacon.BuildWorldMap(registry)
	if err != nil {
		log.Fatalf("Error building world map: %v", err)
	}

	format := a.RenderFormat
	if format != "raster" && format != "vector" && format != "geojson" && format != "both" {
		log.Fatalf("Invalid format: %s (must be raster, vector, geojson, or both)", format)
	}

	fmt.Printf("\nRendering chart (%d beacons, %d scanners)...\n", worldMap.BeaconCount(), len(worldMap.Scanners))

	if format == "raster" || format == "both" {
		outputPath := a.OutputFile
		if format == "both" && !strings.HasSuffix(outputPath, ".png") {
			outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".png"
		}

		renderer := beacon.NewChartRenderer(worldMap)
		applyConfigColors(renderer.Colors, a.Config)
		if err := renderer.RenderToFile(outputPath); err != nil {
			log.Fatalf("Error rendering raster: %v", err)
		}
		fmt.Printf("Created raster: %s\n", outputPath)
	}

	if format == "vector" || format == "both" {
		outputPath := a.OutputFile
		if format == "both" || !strings.HasSuffix(outputPath, ".svg") {
			outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".svg"
		}

		outFile, err := os.Create(outputPath)
		if err != nil {
			log.Fatalf("Error creating output file %s: %v", outputPath, err)
		}

		vectorRenderer := beacon.NewVectorRenderer(worldMap)
		applyConfigColors(vectorRenderer.Colors, a.Config)
		if err := vectorRenderer.RenderToSVG(outFile); err != nil {
			outFile.Close()
			log.Fatalf("Error rendering vector SVG: %v", err)
		}
		if err := outFile.Close(); err != nil {
			log.Printf("Warning: error closing output file %s: %v", outputPath, err)
		}
		fmt.Printf("Created vector SVG: %s\n", outputPath)
	}

	if format == "geojson" {
		outputPath := a.OutputFile
		if !strings.HasSuffix(outputPath, ".geojson") {
			outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".geojson"
		}

		data, err := beacon.MarshalWorldMapGeoJSON(worldMap, configColorMap(a.Config))
		if err != nil {
			log.Fatalf("Error encoding GeoJSON: %v", err)
		}
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			log.Fatalf("Error writing %s: %v", outputPath, err)
		}
		fmt.Printf("Created GeoJSON: %s\n", outputPath)
	}

	fmt.Println("Done!")
}

// RunService starts the combined MQTT and/or HTTP service
func (a *App) RunService() {
	fmt.Println("Starting beaconmesh service...")

	// Resolve configuration paths relative to data-dir if the flags still
	// point at the defaults.
	resolvedConfig := a.ConfigFile
	resolvedCache := a.RegistrationCache
	if a.DataDir != "." {
		if resolvedConfig == "config.yaml" {
			resolvedConfig = filepath.Join(a.DataDir, "config.yaml")
		}
		if resolvedCache == beacon.DefaultRegistrationCachePath {
			resolvedCache = filepath.Join(a.DataDir, beacon.DefaultRegistrationCachePath)
		}
	}

	config, err := beacon.LoadConfig(resolvedConfig)
	if err != nil {
		log.Fatalf("Failed to load config: %v (looked at %s)", err, resolvedConfig)
	}
	a.Config = config
	log.Printf("Loaded config from %s", resolvedConfig)

	cached, err := beacon.LoadRegistration(resolvedCache)
	if err != nil {
		log.Printf("Warning: Failed to load registration cache %s: %v", resolvedCache, err)
	} else if cached != nil {
		a.Registration = cached
		log.Printf("Loaded registration cache from %s", resolvedCache)
	} else {
		log.Printf("Warning: No registration cache found at %s. Poses resolve on first reports.", resolvedCache)
	}

	// State tracker persists the assembled chart next to the cache.
	worldMapCache := filepath.Join(a.DataDir, ".worldmap-cache.json")
	a.StateTracker = beacon.NewStateTrackerWithCache(worldMapCache)

	for _, sc := range config.Scanners {
		if sc.Color != "" {
			a.StateTracker.SetColor(sc.ID, sc.Color)
		}
	}

	// Seed the tracker from report archives and any configured report URLs.
	seeded := a.seedInitialReports()
	if seeded > 0 {
		fmt.Printf("Loaded %d initial scanner report(s)\n", seeded)
	}

	var registrar *beacon.AutoRegistrar

	if a.MqttMode {
		handler := func(scannerID int, rawPayload []byte, scanner *beacon.Scanner, err error) {
			if registrar != nil {
				registrar.OnReport(scannerID, rawPayload, scanner, err)
			}
		}

		mqttClient, err := beacon.InitMQTT(config, handler)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient

		a.Publisher = beacon.NewPublisher(mqttClient.GetClient())
		fmt.Println("MQTT pose publisher initialized")
	}

	registrar = beacon.NewAutoRegistrar(config, a.Registration, resolvedCache, a.DataDir, a.StateTracker, a.Publisher)
	if seeded > 0 {
		registrar.Rebuild()
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.StateTracker, registrar, config)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, sc := range config.Scanners {
			fmt.Printf("    - %s (scanner %d)\n", sc.Topic, sc.ID)
		}
		publishPrefix := config.MQTT.PublishPrefix
		if publishPrefix == "" {
			publishPrefix = "beaconmesh"
		}
		fmt.Printf("  Publishing to: %s/{scannerID}\n", publishPrefix)
		fmt.Printf("  Combined poses: %s/poses\n", publishPrefix)
		fmt.Printf("  Chart summary: %s/chart\n", publishPrefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET /health                   - Health check")
		fmt.Println("  GET /api/positions            - Resolved scanner positions")
		fmt.Println("  GET /api/registration/status  - Registration coverage")
		fmt.Println("  GET /api/map                  - Assembled chart JSON")
		fmt.Println("  GET /map.png                  - Assembled chart PNG")
		fmt.Println("  GET /map.svg                  - Assembled chart SVG")
		fmt.Println("  GET /map.geojson              - Assembled chart GeoJSON")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}

// seedInitialReports loads archived reports from the data directory and
// fetches reports for scanners with a configured report URL. Returns the
// number of scanners seeded.
func (a *App) seedInitialReports() int {
	seeded := 0

	pattern := filepath.Join(a.DataDir, "ScannerReport-*.txt")
	files, _ := filepath.Glob(pattern)
	for _, file := range files {
		scanners, err := beacon.ParseReportFile(file)
		if err != nil {
			log.Printf("Warning: Failed to load %s: %v", file, err)
			continue
		}
		for _, s := range scanners {
			a.StateTracker.UpdateReport(s.ID, s.Local)
			seeded++
		}
	}

	if a.Config == nil {
		return seeded
	}

	for _, sc := range a.Config.Scanners {
		if sc.ReportURL == nil || *sc.ReportURL == "" {
			continue
		}
		s, err := beacon.FetchReportFromAPI(*sc.ReportURL)
		if err != nil {
			log.Printf("Warning: fetch report for scanner %d from %s: %v", sc.ID, *sc.ReportURL, err)
			continue
		}
		if s.ID != sc.ID {
			log.Printf("Warning: report from %s claims scanner %d, expected %d; skipping", *sc.ReportURL, s.ID, sc.ID)
			continue
		}
		a.StateTracker.UpdateReport(s.ID, s.Local)
		seeded++
	}

	return seeded
}
