package main

import (
	"github.com/matryer/way"
)

const URI_WS = "/play"
const URI_ROOMS = "/rooms"

func (s *Server) routes() {
	s.router = way.NewRouter()
	s.router.HandleFunc("GET", URI_WS, s.GameServer.HandleHttpCall())
	s.router.HandleFunc("GET", URI_WS+"/:room", s.GameServer.HandleHttpCall())
	s.router.HandleFunc("POST", URI_ROOMS, s.GameServer.HandleCreateRoom())
	s.router.HandleFunc("GET", URI_ROOMS+"/:room", s.GameServer.HandleRoomStatus())
}
