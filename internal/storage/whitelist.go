package storage

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/whitelist"
)

// WhitelistStore adapts DB to whitelist.Store.
type WhitelistStore struct {
	*DB
}

func (d *DB) Whitelist() *WhitelistStore {
	return &WhitelistStore{DB: d}
}

func (s *WhitelistStore) Save(e whitelist.Entry) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO base_tokens (token, min_profit, updated_at) VALUES (?, ?, ?)",
		e.Token.Hex(), e.MinimumProfit.Dec(), e.UpdatedAt.Unix(),
	)
	return err
}

func (s *WhitelistStore) Load() ([]whitelist.Entry, error) {
	rows, err := s.db.Query("SELECT token, min_profit, updated_at FROM base_tokens ORDER BY token")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []whitelist.Entry
	for rows.Next() {
		var (
			token, minProfit string
			updated          int64
		)
		if err := rows.Scan(&token, &minProfit, &updated); err != nil {
			return nil, err
		}
		amount, err := uint256.FromDecimal(minProfit)
		if err != nil {
			return nil, fmt.Errorf("bad min_profit for %s: %w", token, err)
		}
		entries = append(entries, whitelist.Entry{
			Token:         common.HexToAddress(token),
			MinimumProfit: amount,
			UpdatedAt:     time.Unix(updated, 0).UTC(),
		})
	}
	return entries, rows.Err()
}
