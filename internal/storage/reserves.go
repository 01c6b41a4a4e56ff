package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
)

// GetReserves returns cached reserves of pool at block.
func (d *DB) GetReserves(blockNumber uint64, pool common.Address) (amm.Reserves, bool, error) {
	var r0, r1 string
	err := d.db.QueryRow(
		"SELECT reserve0, reserve1 FROM pool_reserves WHERE block_number = ? AND pool = ?",
		blockNumber, pool.Hex(),
	).Scan(&r0, &r1)

	if errors.Is(err, sql.ErrNoRows) {
		return amm.Reserves{}, false, nil
	}
	if err != nil {
		return amm.Reserves{}, false, err
	}

	reserve0, err := uint256.FromDecimal(r0)
	if err != nil {
		return amm.Reserves{}, false, fmt.Errorf("bad reserve0: %w", err)
	}
	reserve1, err := uint256.FromDecimal(r1)
	if err != nil {
		return amm.Reserves{}, false, fmt.Errorf("bad reserve1: %w", err)
	}
	return amm.NewReserves(reserve0, reserve1, blockNumber), true, nil
}

func (d *DB) SetReserves(pool common.Address, r amm.Reserves) error {
	_, err := d.db.Exec(
		"INSERT OR REPLACE INTO pool_reserves (block_number, pool, reserve0, reserve1) VALUES (?, ?, ?, ?)",
		r.Block, pool.Hex(), r.Reserve0.Dec(), r.Reserve1.Dec(),
	)
	return err
}

// BatchSetReserves writes pool reserves in one transaction.
func (d *DB) BatchSetReserves(pools []amm.Pool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO pool_reserves (block_number, pool, reserve0, reserve1) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range pools {
		if _, err := stmt.Exec(p.Block, p.Address.Hex(), p.Reserve0.Dec(), p.Reserve1.Dec()); err != nil {
			return err
		}
	}
	return tx.Commit()
}
