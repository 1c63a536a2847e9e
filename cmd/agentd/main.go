package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/config"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/state"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/transport"
	"google.golang.org/grpc"
)

func main() {
	addr := flag.String("addr", envOr("REE_ADDR", ":50061"), "listen address")
	cfgPath := flag.String("config", os.Getenv("REE_CONFIG"), "path to YAML config (defaults built in)")
	dbPath := flag.String("db", os.Getenv("REE_DB"), "path to SQLite database (empty disables persistence)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var opts []transport.ServerOption
	if *dbPath != "" {
		store, err := state.NewStore(*dbPath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer store.Close()
		opts = append(opts, transport.WithStore(store))
		log.Printf("persisting to %s", *dbPath)
	}

	srv, err := transport.NewServer(cfg, opts...)
	if err != nil {
		log.Fatalf("new server: %v", err)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen %s: %v", *addr, err)
	}

	gs := grpc.NewServer()
	transport.RegisterAgentServiceServer(gs, srv)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Printf("received %s, shutting down", s)
		gs.GracefulStop()
	}()

	log.Printf("agent service listening on %s", lis.Addr())
	if err := gs.Serve(lis); err != nil {
		log.Fatalf("serve: %v", err)
	}
	log.Println("stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
