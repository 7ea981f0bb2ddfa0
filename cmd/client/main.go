// Command client joins a room and plays it headless, picking the first legal
// move every turn. It is handy for smoke testing a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zucenko/ustcchess/client"
	"github.com/zucenko/ustcchess/extensions"
	"github.com/zucenko/ustcchess/model"
)

type GameState int

const (
	WAITING GameState = iota
	MY_TURN
	THEIR_TURN
	GAME_OVER
)

func (s GameState) Name() string {
	switch s {
	case WAITING:
		return "WAITING"
	case MY_TURN:
		return "MY_TURN"
	case THEIR_TURN:
		return "THEIR_TURN"
	case GAME_OVER:
		return "GAME_OVER"
	default:
		return fmt.Sprintf("N/A(%d)", s)
	}
}

func stateOf(c *client.Client) GameState {
	if _, over := c.Result(); over {
		return GAME_OVER
	}
	switch c.CurrentTurn() {
	case 0:
		return WAITING
	case c.Camp():
		return MY_TURN
	default:
		return THEIR_TURN
	}
}

// firstMove scans the mirror row by row for a chess that can move.
func firstMove(c *client.Client) (model.Position, model.Position, bool) {
	b := c.Board()
	for r := 0; r < b.Rows(); r++ {
		for col := 0; col < b.Cols(); col++ {
			p := model.Position{r, col}
			if !c.CanMove(p) {
				continue
			}
			return p, c.AvailableMoves(p)[0], true
		}
	}
	return model.Position{}, model.Position{}, false
}

func main() {
	url := flag.String("url", "ws://localhost:8080/play", "room url")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "request timeout")
	maxMoves := flag.Int("moves", 0, "surrender after this many moves, 0 plays on")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := client.Dial(ctx, *url, extensions.Builtin(), client.Options{Timeout: *timeout})
	if err != nil {
		log.WithError(err).Fatal("cannot join")
	}
	defer c.Close()
	entry := log.WithField("camp", c.Camp())
	entry.WithField("map", c.Map().Name).Info("joined")

	moves := 0
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			res, _ := c.Result()
			entry.WithFields(log.Fields{"winner": res.Winner, "info": res.Info}).Info("game over")
			fmt.Print(render(c.Board()))
			return
		case ev, ok := <-c.Events():
			if ok && ev.Type == model.TypeDraw {
				// never accept
				if err := c.Draw(ctx, false); err != nil {
					entry.WithError(err).Warn("draw refusal")
				}
			}
		case <-tick.C:
		}
		if stateOf(c) != MY_TURN {
			continue
		}
		if *maxMoves > 0 && moves >= *maxMoves {
			if err := c.Surrender(ctx); err != nil {
				entry.WithError(err).Warn("surrender")
			}
			continue
		}
		from, to, ok := firstMove(c)
		if !ok {
			continue
		}
		if err := c.Move(ctx, from, to); err != nil {
			entry.WithError(err).Warn("move")
			continue
		}
		moves++
		entry.WithFields(log.Fields{"from": from, "to": to}).Debug("moved")
	}
}
