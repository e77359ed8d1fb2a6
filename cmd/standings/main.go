package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"minority/internal/game"
)

const DEFAULT_ENDPOINT = "http://localhost:8080"

func main() {
	endpoint := flag.String("endpoint", DEFAULT_ENDPOINT, "API base URL")
	top := flag.Int("top", 10, "leaderboard rows")
	flag.Parse()

	var round game.Game
	if err := fetch(*endpoint+"/api/v1/rounds/current", &round); err != nil {
		log.WithError(err).Warn("[STANDINGS] no current round")
	} else {
		var odds game.Odds
		if err := fetch(fmt.Sprintf("%s/api/v1/rounds/%d/odds", *endpoint, round.ID), &odds); err != nil {
			log.WithError(err).Warn("[STANDINGS] odds unavailable")
		}
		printRound(os.Stdout, round, odds)
	}

	var board []game.Standing
	if err := fetch(fmt.Sprintf("%s/api/v1/leaderboard?top=%d", *endpoint, *top), &board); err != nil {
		log.Fatalf("[STANDINGS] leaderboard: %v", err)
	}
	printLeaderboard(os.Stdout, board)
}

func fetch(url string, v interface{}) error {
	agent := fiber.Get(url).Timeout(5 * time.Second)
	code, body, errs := agent.Struct(v)
	if len(errs) > 0 {
		return errs[0]
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("%s: status %d: %s", url, code, body)
	}
	return nil
}

func printRound(out io.Writer, g game.Game, odds game.Odds) {
	fmt.Fprintf(out, "\nRound %d  %s  close@%d\n", g.ID, g.Phase, g.CloseHeight)

	table := tablewriter.NewWriter(out)
	table.Header("Side", "Pool", "Bettors", "Valid pool", "Odds")
	table.Append("RED", strconv.FormatUint(g.RedPool, 10), strconv.FormatUint(uint64(g.RedBettors), 10),
		strconv.FormatUint(g.ValidRedPool, 10), odds.Red.StringFixed(2))
	table.Append("BLUE", strconv.FormatUint(g.BluePool, 10), strconv.FormatUint(uint64(g.BlueBettors), 10),
		strconv.FormatUint(g.ValidBluePool, 10), odds.Blue.StringFixed(2))
	table.Render()

	switch {
	case g.HasWinner:
		fmt.Fprintf(out, "  winner: %s\n", g.WinningSide)
	case g.Cancelled():
		fmt.Fprintf(out, "  cancelled: %s\n", g.CancelReason)
	}
}

func printLeaderboard(out io.Writer, board []game.Standing) {
	fmt.Fprintf(out, "\nLeaderboard (%d)\n", len(board))

	table := tablewriter.NewWriter(out)
	table.Header("#", "Participant", "Winnings", "Wins")
	for i, s := range board {
		table.Append(
			strconv.Itoa(i+1),
			s.Participant,
			strconv.FormatUint(s.Winnings, 10),
			strconv.FormatUint(s.Wins, 10),
		)
	}
	table.Render()
}
