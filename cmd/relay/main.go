package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"neontactics.gg/internal/persistence/indexdb"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/transport/relay"
)

// envConfig lets deployments override the flag defaults without a wrapper
// script.
type envConfig struct {
	Addr      string `env:"RELAY_ADDR" envDefault:":8090"`
	ConfigDir string `env:"RELAY_CONFIG_DIR" envDefault:"./configs"`
	MapsDir   string `env:"RELAY_MAPS_DIR" envDefault:"./maps"`
	DataDir   string `env:"RELAY_DATA_DIR" envDefault:"./data"`
	Schema    string `env:"RELAY_MAP_SCHEMA" envDefault:"./schemas/map.schema.json"`
}

func main() {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		log.Fatalf("env: %v", err)
	}
	var (
		addr      = flag.String("addr", ec.Addr, "http listen address")
		mapsDir   = flag.String("maps", ec.MapsDir, "map library directory")
		dataDir   = flag.String("data", ec.DataDir, "runtime data directory (index, journals, snapshots)")
		schema    = flag.String("map_schema", ec.Schema, "map JSON Schema path (empty to skip validation)")
		disableDB = flag.Bool("disable_db", false, "disable the sqlite match/map index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[relay] ", log.LstdFlags|log.Lmicroseconds)

	var codec *mapfile.Codec
	if *schema != "" {
		c, err := mapfile.NewCodec(*schema)
		if err != nil {
			logger.Fatalf("map schema: %v", err)
		}
		codec = c
	}

	var (
		idx  *indexdb.SQLiteIndex
		maps relay.MapChecker = fsMaps{dir: *mapsDir}
	)
	if !*disableDB {
		var err error
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("index db: %v", err)
		}
		defer idx.Close()
		count, errs := idx.UpsertMaps(*mapsDir, codec)
		for _, err := range errs {
			logger.Printf("map library: %v", err)
		}
		logger.Printf("map library: %d maps indexed from %s", count, *mapsDir)
		maps = indexMaps{idx: idx}
	}

	hooks := newMatchHooks(logger, idx, *dataDir)
	defer hooks.Close()

	srv := relay.NewServer(logger, maps, hooks)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", srv.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/maps", func(w http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(w, "index disabled", http.StatusNotImplemented)
			return
		}
		rows, err := idx.Maps()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})
	mux.HandleFunc("/v1/matches", func(w http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(w, "index disabled", http.StatusNotImplemented)
			return
		}
		rows, err := idx.RecentMatches(100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})

	httpSrv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (rooms: ws://%s/v1/ws)", *addr, *addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("listen: %v", err)
	}
	logger.Printf("shut down")
}

// fsMaps answers map existence from the filesystem when the index is off.
type fsMaps struct{ dir string }

func (m fsMaps) HasMap(id string) bool {
	if id == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(m.dir, id+".json"))
	return err == nil
}

type indexMaps struct{ idx *indexdb.SQLiteIndex }

func (m indexMaps) HasMap(id string) bool {
	_, err := m.idx.MapByID(id)
	return err == nil
}
