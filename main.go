package main

import (
	"net/rpc"

	"github.com/wfunc/swarmserver/config"
	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/monitor"
	"github.com/wfunc/swarmserver/persistence"
	"github.com/wfunc/swarmserver/registry"
	"github.com/wfunc/swarmserver/room"
	"github.com/wfunc/swarmserver/server"
	"github.com/wfunc/swarmserver/services"
	"github.com/wfunc/swarmserver/sim"

	gameserver_rpc "github.com/wfunc/swarmserver/rpc"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	var db persistence.Database
	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case "pq":
		db, err = persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		db, err = persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	}
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Metrics
	mon := monitor.NewMonitor("swarmserver")
	if cfg.Server.MetricsAddress != "" {
		mon.StartServer(cfg.Server.MetricsAddress)
	}

	// Singleton match registry
	reg := registry.NewRegistry(db, cfg.Game.RegistryStale)
	matchService := services.NewMatchService(reg)

	// Room actors
	rooms := room.NewManager(db, sim.NewSwarmEngine(), cfg.Game, reg, mon)

	// Internal RPC query service
	rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	if err := rpc.Register(gameserver_rpc.NewMatchmaker(matchService)); err != nil {
		logger.Log.Fatalf("Failed to register RPC service: %v", err)
	}
	go rpcServer.Start()

	// Start Server
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, rooms, matchService, db, mon, cfg.Game)
	logger.Log.Infof("Starting swarm server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
