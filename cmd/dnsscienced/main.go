package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dnsscience/dnsscienced/internal/authority"
	"github.com/dnsscience/dnsscienced/internal/cache"
	"github.com/dnsscience/dnsscienced/internal/client"
	"github.com/dnsscience/dnsscienced/internal/config"
	"github.com/dnsscience/dnsscienced/internal/filter"
	"github.com/dnsscience/dnsscienced/internal/resolver"
	"github.com/dnsscience/dnsscienced/internal/rrl"
	"github.com/dnsscience/dnsscienced/internal/server"
	"github.com/dnsscience/dnsscienced/internal/stats"
	"github.com/dnsscience/dnsscienced/internal/transport"
	"github.com/dnsscience/dnsscienced/internal/zone"
)

var configFile = flag.String("config", "", "YAML configuration file (optional, flags below override its fields)")

var (
	udpAddr        = flag.String("udp", ":5353", "UDP listen address")
	tcpAddr        = flag.String("tcp", ":5353", "TCP listen address")
	udpWorkers     = flag.Int("udp-workers", config.DefaultUDPWorkers, "Number of UDP worker goroutines")
	tcpWorkers     = flag.Int("tcp-workers", config.DefaultTCPWorkers, "Number of TCP worker goroutines")
	zoneFile       = flag.String("zone", "", "Zone file to load (optional)")
	authoritative  = flag.Bool("authoritative", false, "Enable authoritative answers from the loaded zone")
	recursive      = flag.Bool("recursive", true, "Allow recursive resolution")
	forwardHost    = flag.String("forward", "", "Forward misses to this upstream instead of resolving recursively")
	filterFile     = flag.String("filter", "", "Blocklist rule file (optional)")
	rrlEnabled     = flag.Bool("rrl", false, "Enable response rate limiting")
	metricsAddr    = flag.String("metrics", ":9153", "Prometheus metrics listen address")
	printStatsFlag = flag.Bool("print-stats", true, "Print statistics periodically")
)

func main() {
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                                                              ║")
	fmt.Println("║              DNSScienced - Production DNS Server             ║")
	fmt.Println("║                                                              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("  UDP Address:      %s (%d workers)\n", cfg.UDPAddr, cfg.UDPWorkers)
	fmt.Printf("  TCP Address:      %s (%d workers)\n", cfg.TCPAddr, cfg.TCPWorkers)
	fmt.Printf("  CPU Cores:        %d\n", runtime.NumCPU())
	fmt.Printf("  Strategy:         %s\n", cfg.Strategy)
	fmt.Printf("  Authoritative:    %v\n", cfg.Authoritative)
	fmt.Printf("  Root Hints:       %v\n", cfg.UseRootHints)
	fmt.Printf("  RRL:              %v\n", cfg.RRLEnabled)
	fmt.Println()

	reg := prometheus.NewRegistry()
	st := stats.New(reg)

	auth := authority.New()
	if cfg.UseRootHints && cfg.Strategy != config.StrategyForward {
		auth.LoadRootHints()
	}
	for _, path := range cfg.ZoneFiles {
		fmt.Printf("Loading zone: %s\n", path)
		z, err := zone.ParseDNSZone(path, zone.DefaultConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading zone %s: %v\n", path, err)
			os.Exit(1)
		}
		auth.AddZone(z)
	}

	c := cache.New(32)
	netClient, err := client.NewNetworkClient(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating DNS client: %v\n", err)
		os.Exit(1)
	}

	var authorityDB resolver.Authority
	if cfg.Authoritative || cfg.UseRootHints {
		authorityDB = auth
	}

	var res resolver.Resolver
	switch cfg.Strategy {
	case config.StrategyForward:
		res = resolver.NewForwarding(authorityDB, c, netClient, cfg.AllowRecursive, cfg.ForwardHost, cfg.ForwardPort)
	default:
		res = resolver.NewRecursive(authorityDB, c, netClient, cfg.AllowRecursive)
	}

	f := filter.New()
	if cfg.FilterFile != "" {
		fmt.Printf("Loading filter rules: %s\n", cfg.FilterFile)
		if err := f.LoadRules(cfg.FilterFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading filter rules: %v\n", err)
			os.Exit(1)
		}
	}

	var limiter *rrl.Limiter
	if cfg.RRLEnabled {
		limiter = rrl.NewLimiter(rrl.DefaultConfig())
		defer limiter.Close()
	}

	sc := &server.Context{Resolver: res, Filter: f, AllowRecursive: cfg.AllowRecursive}

	udpSrv, err := transport.NewUDPServer(cfg.UDPAddr, sc, limiter, st, cfg.UDPWorkers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting UDP server: %v\n", err)
		os.Exit(1)
	}
	udpSrv.Start()

	tcpSrv, err := transport.NewTCPServer(cfg.TCPAddr, sc, st, cfg.TCPWorkers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting TCP server: %v\n", err)
		os.Exit(1)
	}
	tcpSrv.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()

	fmt.Println("DNS server started successfully!")
	fmt.Println()

	if *printStatsFlag {
		go printStats(st)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println()

	udpSrv.Close()
	tcpSrv.Close()
	metricsServer.Close()
}

// loadConfig builds a Config from -config's YAML document, if given, then
// applies any explicitly set command-line flags on top.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			return config.Config{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "udp":
			cfg.UDPAddr = *udpAddr
		case "tcp":
			cfg.TCPAddr = *tcpAddr
		case "udp-workers":
			cfg.UDPWorkers = *udpWorkers
		case "tcp-workers":
			cfg.TCPWorkers = *tcpWorkers
		case "authoritative":
			cfg.Authoritative = *authoritative
		case "recursive":
			cfg.AllowRecursive = *recursive
		case "forward":
			cfg.Strategy = config.StrategyForward
			cfg.ForwardHost = *forwardHost
			cfg.ForwardPort = 53
		case "filter":
			cfg.FilterFile = *filterFile
		case "rrl":
			cfg.RRLEnabled = *rrlEnabled
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if *zoneFile != "" {
		cfg.ZoneFiles = append(cfg.ZoneFiles, *zoneFile)
	}

	return cfg, cfg.Validate()
}

func printStats(st *stats.Stats) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastTotal uint64
	lastTime := time.Now()

	for range ticker.C {
		snap := st.Snapshot()
		now := time.Now()
		elapsed := now.Sub(lastTime).Seconds()

		total := snap.UDPCount + snap.TCPCount
		qps := float64(total-lastTotal) / elapsed

		fmt.Printf("═══════════════════════════════════════════════════════════\n")
		fmt.Printf("Statistics (%.1fs interval):\n", elapsed)
		fmt.Printf("  UDP Queries:  %10d\n", snap.UDPCount)
		fmt.Printf("  TCP Queries:  %10d\n", snap.TCPCount)
		fmt.Printf("  QPS:          %10.0f\n", qps)
		fmt.Printf("  Min/Avg/Max:  %d/%d/%d ms\n", snap.MinMillis, snap.AvgMillis, snap.MaxMillis)
		fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

		lastTotal = total
		lastTime = now
	}
}
