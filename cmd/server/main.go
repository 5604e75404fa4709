package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"

	"nilm_simulator/internal/api"
	"nilm_simulator/internal/model"
	"nilm_simulator/internal/simulator"
	"nilm_simulator/internal/store"
	"nilm_simulator/internal/ws"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	historyCapacity := flag.Int("history-capacity", simulator.DefaultHistoryCapacity, "rolling history buffer capacity")
	seed := flag.Int64("seed", 0, "random seed (0 = time-based)")
	speed := flag.Float64("speed", 1, "initial speed multiplier")
	autostart := flag.Bool("autostart", true, "start generating events immediately")
	flag.Parse()

	catalog := model.DefaultCatalog()
	deviceStore := store.New(catalog, time.Now())

	history, err := simulator.NewHistory(*historyCapacity)
	if err != nil {
		log.Fatalf("History buffer: %v", err)
	}

	hub := ws.NewHub()
	bridge := ws.NewBridge(hub)
	engine := simulator.New(deviceStore, history, bridge)
	if *seed != 0 {
		engine.SetSeed(*seed)
	}
	if err := engine.SetSpeed(*speed); err != nil {
		log.Fatalf("Initial speed: %v", err)
	}

	log.Printf("Catalog loaded: %d devices", catalog.Len())

	// Routes
	router := api.NewRouter(engine)
	router.Handle("/ws", ws.NewHandler(hub, engine))

	// Serve frontend static files
	if _, err := os.Stat(*frontendDir); err == nil {
		log.Printf("Serving frontend from %s", *frontendDir)
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(*frontendDir)))
	}

	if *autostart {
		engine.Start()
	}

	logged := handlers.LoggingHandler(os.Stdout, router)
	log.Printf("Starting server on %s", *addr)
	if err := http.ListenAndServe(*addr, logged); err != nil {
		log.Fatal(err)
	}
}
