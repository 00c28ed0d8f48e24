// Command lightclient runs a Tendermint-style light client as a standalone
// daemon: it keeps a verified chain of trust rooted in an operator-pinned
// trust anchor, serves its own JSON-RPC surface, and cross-checks witnesses
// for forks in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tolelom/tmlight/config"
	"github.com/tolelom/tmlight/crypto/certgen"
	"github.com/tolelom/tmlight/evidence"
	"github.com/tolelom/tmlight/events"
	"github.com/tolelom/tmlight/light"
	"github.com/tolelom/tmlight/lightstore"
	"github.com/tolelom/tmlight/rpc"
	"github.com/tolelom/tmlight/storage"
	"github.com/tolelom/tmlight/trustseed"
	"github.com/tolelom/tmlight/types"
)

const trustSeedPasswordEnv = "TMLIGHT_PASSWORD"

func main() {
	configPath := flag.String("config", "config.json", "path to config JSON file")
	trustSeedPath := flag.String("trustseed", "trustseed.json", "path to the encrypted trust anchor file")
	gencertsDir := flag.String("gencerts", "", "generate a CA and node cert/key pair into this directory, then exit")
	gencertsNodeID := flag.String("gencerts-id", "lightclient", "node ID used for the generated cert's file names and SANs")
	bootstrap := flag.String("bootstrap", "", "height:hash pair to pin as the initial trust anchor, then exit (e.g. 100:ab12...)")
	flag.Parse()

	if *gencertsDir != "" {
		if err := certgen.GenerateAll(*gencertsDir, *gencertsNodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		log.Printf("wrote CA and node certificates for %q to %s", *gencertsNodeID, *gencertsDir)
		return
	}

	password := os.Getenv(trustSeedPasswordEnv)
	if password == "" {
		log.Printf("warning: %s is unset; using an empty trust seed password is not recommended", trustSeedPasswordEnv)
	}

	if *bootstrap != "" {
		if err := runBootstrap(*bootstrap, *trustSeedPath, password, *configPath); err != nil {
			log.Fatalf("bootstrap: %v", err)
		}
		log.Printf("wrote trust anchor to %s", *trustSeedPath)
		return
	}

	if err := run(*configPath, *trustSeedPath, password); err != nil {
		log.Fatalf("lightclient: %v", err)
	}
}

// runBootstrap parses a "height:hash" pair and writes it as an encrypted
// trust anchor. The trusting period is taken from config if it loads
// cleanly, otherwise from config.DefaultOptions.
func runBootstrap(spec, trustSeedPath, password, configPath string) error {
	height, hash, err := parseHeightHash(spec)
	if err != nil {
		return err
	}
	opts, err := config.Load(configPath)
	if err != nil {
		opts = config.DefaultOptions()
	}
	return trustseed.Save(trustSeedPath, password, trustseed.TrustOptions{
		Height:         height,
		Hash:           hash,
		TrustingPeriod: opts.TrustingPeriod,
	})
}

func parseHeightHash(spec string) (types.Height, types.Hash, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, types.Hash{}, fmt.Errorf("bootstrap must be HEIGHT:HASH, got %q", spec)
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("bootstrap height: %w", err)
	}
	hash, err := types.HashFromHex(parts[1])
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("bootstrap hash: %w", err)
	}
	return types.Height(h), hash, nil
}

func run(configPath, trustSeedPath, password string) error {
	opts, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	anchor, err := trustseed.Load(trustSeedPath, password)
	if err != nil {
		return fmt.Errorf("load trust seed (run with --bootstrap first): %w", err)
	}

	tlsCfg, err := config.LoadTLSConfig(opts.TLS)
	if err != nil {
		return fmt.Errorf("load TLS config: %w", err)
	}

	db, err := storage.NewLevelDB(opts.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir %s: %w", opts.DataDir, err)
	}
	defer db.Close()

	store := lightstore.NewLevelStore(db)
	peers := config.BuildPeerSet(opts, tlsCfg)
	emitter := events.NewEmitter()
	evStore := evidence.New(db, emitter)

	ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout)
	if _, ok := lightstore.LatestTrustedOrVerified(store); !ok {
		seed, err := light.VerifyTrustAnchor(ctx, peers.Primary(), anchor, opts.RequestTimeout)
		if err != nil {
			cancel()
			return fmt.Errorf("verify trust anchor: %w", err)
		}
		if err := store.Insert(seed, types.Trusted); err != nil {
			cancel()
			return fmt.Errorf("seed store with trust anchor: %w", err)
		}
		log.Printf("seeded trust at height %d", seed.Height())
	}
	cancel()

	client := light.New(opts, store, peers, emitter, config.SystemClock)

	emitter.Subscribe(events.EventForkDetected, func(ev events.Event) {
		log.Printf("[light] fork detected at height %d", ev.Height)
	})
	emitter.Subscribe(events.EventPrimaryRotated, func(ev events.Event) {
		log.Printf("[light] primary rotated: %v", ev.Data)
	})

	server := rpc.NewServer(opts.RPCAddr, rpc.NewHandler(client, evStore), opts.RPCAuthToken)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}
	log.Printf("rpc listening on %s", addrString(server))

	stop := make(chan struct{})
	go refreshLoop(client, opts.RequestTimeout, stop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stop)
	if err := server.Stop(); err != nil {
		log.Printf("rpc shutdown: %v", err)
	}
	return nil
}

// refreshLoop periodically verifies to the primary's latest height so the
// store stays current without waiting on an inbound RPC request.
func refreshLoop(client *light.Client, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period * 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), period)
			if _, err := client.VerifyToHighest(ctx); err != nil {
				log.Printf("[light] periodic verify failed: %v", err)
			}
			cancel()
		}
	}
}

func addrString(s *rpc.Server) string {
	if a := s.Addr(); a != nil {
		return a.String()
	}
	return ""
}
