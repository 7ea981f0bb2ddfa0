package server

import (
	"errors"
	"fmt"
	"math/rand"
	"net"

	log "github.com/sirupsen/logrus"
)

var ErrNoUsablePort = errors.New("no usable port")

const (
	bindRetries = 10
	minPort     = 10000
	maxPort     = 65536
)

var listenFunc = net.Listen

// Listen binds host:port. Port 0 picks random ports in [10000, 65536) and
// gives up after a few failed binds.
func Listen(host string, port int) (net.Listener, error) {
	if port != 0 {
		return listenFunc("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	}
	for i := 0; i < bindRetries; i++ {
		p := minPort + rand.Intn(maxPort-minPort)
		l, err := listenFunc("tcp", net.JoinHostPort(host, fmt.Sprint(p)))
		if err == nil {
			return l, nil
		}
		log.WithError(err).WithField("port", p).Warn("Listen bind failed, retrying")
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrNoUsablePort, bindRetries)
}
