package main

import (
	"log"
	"net/http"
	"os"

	"github.com/kwv/planeslam/slam"
)

// startHTTPServer mounts the debug/export endpoints and blocks serving addr.
func startHTTPServer(addr string, a *App) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlerFor(a))
	mux.HandleFunc("/viewer.svg", viewerSVGHandlerFor(a))
	mux.HandleFunc("/viewer.png", viewerPNGHandlerFor(a))
	mux.HandleFunc("/graph.dot", graphDotHandlerFor(a))
	mux.HandleFunc("/save", saveHandlerFor(a))
	return http.ListenAndServe(addr, mux)
}

func healthHandlerFor(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, err := marshalHealth(a.health())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := w.Write(body); err != nil {
			log.Printf("[HTTP] error writing /health response: %v", err)
		}
	}
}

func viewerSVGHandlerFor(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		planes := a.orchestrator.Landmarks().AllPlanes()
		path := a.orchestrator.Graph().GetOptimizedPath()
		snapshot := slam.NewViewerSnapshot(planes, path)
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := snapshot.RenderToSVG(w); err != nil {
			log.Printf("[HTTP] error rendering /viewer.svg: %v", err)
		}
	}
}

func viewerPNGHandlerFor(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		planes := a.orchestrator.Landmarks().AllPlanes()
		path := a.orchestrator.Graph().GetOptimizedPath()
		snapshot := slam.NewViewerSnapshot(planes, path)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := snapshot.RenderToPNG(w); err != nil {
			log.Printf("[HTTP] error rendering /viewer.png: %v", err)
		}
	}
}

func graphDotHandlerFor(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmp, err := os.CreateTemp("", "planeslam-graph-*.dot")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := a.orchestrator.Graph().SaveGraph(tmpPath); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.ServeFile(w, r, tmpPath)
	}
}

func saveHandlerFor(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.SaveResults(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("saved\n")); err != nil {
			log.Printf("[HTTP] error writing /save response: %v", err)
		}
	}
}
