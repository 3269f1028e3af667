package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"CryptoSentinel/internal/model"
)

// State is the persisted ledger: cash, open positions and trade counters.
type State struct {
	InitialBalance float64                   `json:"initial_balance"`
	Cash           float64                   `json:"cash"`
	Positions      map[string]model.Position `json:"positions"`
	RealizedPnL    float64                   `json:"realized_pnl"`
	TotalTrades    int                       `json:"total_trades"`
	WinningTrades  int                       `json:"winning_trades"`
	LosingTrades   int                       `json:"losing_trades"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// LoadState reads the ledger state from a JSON file. Returns a zero state if
// the file doesn't exist; a file that cannot be decoded is an error.
func LoadState(filePath string) (*State, error) {
	state := &State{Positions: map[string]model.Position{}}
	if filePath == "" {
		return state, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("corrupted ledger state %s: %w", filePath, err)
	}
	if state.Positions == nil {
		state.Positions = map[string]model.Position{}
	}
	return state, nil
}

// SaveState writes the ledger state to a JSON file via a temp file rename.
func SaveState(filePath string, state *State) error {
	if filePath == "" {
		return nil
	}
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
