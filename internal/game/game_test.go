package game

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDeriveStarted(t *testing.T) {
	cases := []struct {
		name    string
		players []Player
		want    bool
	}{
		{
			name:    "empty roster",
			players: nil,
			want:    false,
		},
		{
			name:    "host not started",
			players: []Player{{PlayerID: "p1", Name: "Alice", IsHost: true}},
			want:    false,
		},
		{
			name: "guest claims started but host does not",
			players: []Player{
				{PlayerID: "p1", Name: "Alice", IsHost: true},
				{PlayerID: "p2", Name: "Bob", GameStarted: true},
			},
			want: false,
		},
		{
			name: "host started",
			players: []Player{
				{PlayerID: "p2", Name: "Bob"},
				{PlayerID: "p1", Name: "Alice", IsHost: true, GameStarted: true},
			},
			want: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStarted(tc.players); got != tc.want {
				t.Fatalf("DeriveStarted: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseDrawnNumber(t *testing.T) {
	cases := []struct {
		payload string
		want    int
		wantErr bool
	}{
		{payload: "17", want: 17},
		{payload: " 17 ", want: 17},
		{payload: `"17"`, want: 17},
		{payload: `\"42\"`, want: 42},
		{payload: "'5'", want: 5},
		{payload: "notanumber", wantErr: true},
		{payload: "", wantErr: true},
		{payload: "1.5", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.payload, func(t *testing.T) {
			got, err := ParseDrawnNumber(tc.payload)
			if tc.wantErr {
				if err == nil || !errors.Is(err, ErrBadDrawnNumber) {
					t.Fatalf("want ErrBadDrawnNumber, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBingoCard_DecodeCells(t *testing.T) {
	raw := `{"cardId":"c1","card":[[1,-1,null],[4,5,6]]}`

	var card BingoCard
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if card.CardID != "c1" {
		t.Fatalf("cardId: got %q", card.CardID)
	}
	if !card.Grid[0][1].Marked() {
		t.Fatalf("expected -1 to decode as marked, got %+v", card.Grid[0][1])
	}
	if !card.Grid[0][2].Free {
		t.Fatalf("expected null to decode as free space, got %+v", card.Grid[0][2])
	}
	if !card.Contains(5) || card.Contains(2) || card.Contains(MarkedCell) {
		t.Fatalf("Contains gave unexpected results for %+v", card.Grid)
	}

	out, err := json.Marshal(card)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("encode: got %s, want %s", out, raw)
	}
}

func TestBingoCard_CloneIsIndependent(t *testing.T) {
	card := BingoCard{CardID: "c1", Grid: [][]Cell{{NumberCell(3), FreeCell()}}}
	cp := card.Clone()
	cp.Grid[0][0] = NumberCell(MarkedCell)

	if card.Grid[0][0].Number != 3 {
		t.Fatalf("clone shares rows with original")
	}
}

func TestFindPlayer(t *testing.T) {
	players := []Player{{PlayerID: "p1", Name: "Alice"}, {PlayerID: "p2", Name: "Bob"}}

	p, ok := FindPlayer(players, "p2")
	if !ok || p.Name != "Bob" {
		t.Fatalf("FindPlayer(p2): got %+v, %v", p, ok)
	}
	if _, ok := FindPlayer(players, "p9"); ok {
		t.Fatalf("FindPlayer(p9): expected miss")
	}
}
