package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shardstore/shardstore/internal/config"
	"github.com/shardstore/shardstore/internal/log_service/zaplog"
	"github.com/shardstore/shardstore/internal/node_server"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	name := flag.String("name", "node", "node name used in logs")
	listen := flag.String("listen", "", "listen address, overrides config")
	dataDir := flag.String("data-dir", "", "object directory, overrides config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	address := cfg.ListenAddress
	if *listen != "" {
		address = *listen
	}
	dir := cfg.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}

	ls := zaplog.NewDevelopmentLogService(*name, cfg.LogLevel)

	server, err := node_server.NewNodeServer(address, dir, ls)
	if err != nil {
		log.Fatalf("create node server: %v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("start node server: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	if err := server.Stop(); err != nil {
		log.Printf("stop node server: %v", err)
	}
}
