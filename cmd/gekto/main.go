package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/Badaboom1995/gekto-sub001/internal/agent"
	"github.com/Badaboom1995/gekto-sub001/internal/db"
	"github.com/Badaboom1995/gekto-sub001/internal/planner"
	"github.com/Badaboom1995/gekto-sub001/internal/proxy"
	"github.com/Badaboom1995/gekto-sub001/internal/repository"
	"github.com/Badaboom1995/gekto-sub001/internal/store"
	"github.com/Badaboom1995/gekto-sub001/internal/ws"
)

func main() {
	var (
		port      = pflag.Int("port", envInt("GEKTO_PORT", 4090), "port the injection proxy listens on")
		target    = pflag.Int("target", envInt("GEKTO_TARGET", 3000), "port of the target application to front")
		assetPort = pflag.Int("asset-port", envInt("GEKTO_ASSET_PORT", 5173), "port of the widget asset dev server")
		dev       = pflag.Bool("dev", false, "load widget assets from the asset dev server")
		workdir   = pflag.String("workdir", getEnv("GEKTO_WORKDIR", "."), "working directory for assistant processes")
		agentCmd  = pflag.String("agent-cmd", getEnv("GEKTO_AGENT_CMD", "claude"), "assistant command line")
		dataDir   = pflag.String("data-dir", getEnv("GEKTO_DATA_DIR", "data"), "directory for records and transcripts")
	)
	pflag.Parse()

	workingDir, err := filepath.Abs(*workdir)
	if err != nil {
		log.Fatalf("Failed to resolve workdir: %v", err)
	}
	logDir := filepath.Join(*dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	database, err := db.Open(filepath.Join(*dataDir, "gekto.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	records := repository.NewRecordRepository(database)

	state, err := store.Open(filepath.Join(*dataDir, "gekto.json"))
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}

	pool := agent.NewPool(agent.Config{
		WorkingDir:   workingDir,
		AgentCommand: *agentCmd,
		LogDir:       logDir,
		Records:      records,
	})
	defer pool.Close()

	pl := planner.New(*agentCmd)
	defer pl.Kill()

	handler := ws.NewHandler(pool, pl, ws.NewRegistry())
	handler.InitPlanner()

	injector, err := proxy.New(proxy.Config{
		Target:    "http://localhost:" + strconv.Itoa(*target),
		Dev:       *dev,
		AssetPort: *assetPort,
	})
	if err != nil {
		log.Fatalf("Failed to create proxy: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Control plane, widget assets, shared state and diagnostics under
	// the reserved namespace; everything else flows through the
	// injection proxy.
	assets := proxy.AssetHandler(*dev, *assetPort)
	ns := r.Group("/__gekto")
	ns.GET("/ws", gin.WrapF(handler.HandleConnection))
	ns.GET("/gekto.js", gin.WrapH(assets))
	ns.GET("/gekto.css", gin.WrapH(assets))
	store.RegisterRoutes(ns, state)
	registerRecordRoutes(ns, records)
	r.NoRoute(gin.WrapH(injector))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		handler.Registry().Close()
		pool.Close()
		pl.Kill()
		database.Close()
		os.Exit(0)
	}()

	log.Printf("gekto proxying :%d -> :%d (workdir %s)", *port, *target, workingDir)
	if err := r.Run(":" + strconv.Itoa(*port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
