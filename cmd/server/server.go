package main

import (
	"bytes"
	_ "embed"
	"flag"
	"net/http"
	"os"
	"strconv"

	"github.com/matryer/way"
	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/extensions"
	"github.com/zucenko/ustcchess/model"
	"github.com/zucenko/ustcchess/server"
)

//go:embed maps/stdchess.json
var defaultMap []byte

type Server struct {
	router     *way.Router
	GameServer *server.GameServer
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envPort() int {
	raw := env("USTC_PORT", env("PORT", "0"))
	port, err := strconv.Atoi(raw)
	if err != nil {
		log.WithField("port", raw).Warn("bad port in environment, using a random one")
		return 0
	}
	return port
}

func loadMap(path string) (*model.Map, error) {
	if path == "" {
		return model.LoadMap(bytes.NewReader(defaultMap))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return model.LoadMap(f)
}

func main() {
	host := flag.String("host", env("USTC_HOST", ""), "listen host")
	port := flag.Int("port", envPort(), "listen port, 0 picks a random one")
	mapPath := flag.String("map", env("USTC_MAP", ""), "map file, empty for standard chess")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	m, err := loadMap(*mapPath)
	if err != nil {
		log.WithError(err).Fatal("cannot load map")
	}
	Server := Server{
		GameServer: server.NewGameServer(m, extensions.Builtin()),
	}
	go Server.GameServer.Loop()
	Server.routes()

	listener, err := server.Listen(*host, *port)
	if err != nil {
		log.WithError(err).Fatal("cannot listen")
	}
	log.WithFields(log.Fields{"addr": listener.Addr().String(), "map": m.ID}).Info("serving")
	log.Fatalln(http.Serve(listener, Server.router))
}
