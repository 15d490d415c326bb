package game

import (
	"fmt"
	"strconv"
	"strings"
)

// DeriveStarted is true when the roster holds a host whose record says the game started.
func DeriveStarted(players []Player) bool {
	for _, p := range players {
		if p.IsHost && p.GameStarted {
			return true
		}
	}
	return false
}

func FindPlayer(players []Player, playerID string) (Player, bool) {
	for _, p := range players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Player{}, false
}

// ParseDrawnNumber reads a bingo_number payload. Servers sometimes send the
// number JSON-quoted ("17" or \"17\"), so quoting is stripped first.
func ParseDrawnNumber(payload string) (int, error) {
	s := strings.TrimSpace(payload)
	s = strings.ReplaceAll(s, `\"`, "")
	s = strings.Trim(s, `"' `)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadDrawnNumber, payload)
	}
	return n, nil
}
