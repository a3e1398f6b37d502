package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile = flag.String("config", "config.yaml", "Path to SLAM configuration file")
	framesDir  = flag.String("frames-dir", "", "Directory of FrameMessage JSON files to replay once, then save results and exit")
	mqttMode   = flag.Bool("mqtt", false, "Subscribe to an MQTT frame topic and run the ingest pool")
	httpMode   = flag.Bool("http", false, "Enable the HTTP debug/export server")
	httpPort   = flag.Int("http-port", 8080, "HTTP server port")
	outputDir  = flag.String("output-dir", "", "Override the config's output directory")
	seed       = flag.Int64("seed", 1, "RANSAC/tracker RNG seed")
)

func main() {
	flag.Parse()
	fmt.Printf("planeslam version: %s\n", Version)

	app, err := NewApp(*configFile, *outputDir, *seed)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	if *framesDir != "" {
		if err := app.RunOnce(*framesDir); err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		return
	}

	if !*mqttMode && !*httpMode {
		fmt.Println("planeslam service")
		fmt.Println("Use --frames-dir=DIR to replay a recorded frame set once and exit")
		fmt.Println("Use --mqtt to subscribe to a live frame topic")
		fmt.Println("Use --http to expose the debug/export HTTP server")
		return
	}

	app.RunService(*mqttMode, *httpMode, *httpPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	app.Shutdown()
	fmt.Println("Stopped")
}
