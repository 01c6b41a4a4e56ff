// Package scenario evaluates offline reserve snapshots stored as parquet.
package scenario

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/engine"
	"github.com/pulkyeet/flasharb/internal/execution"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// Row is one what-if: both pools' reserves seen from the base token.
// Amounts are decimal strings since they do not fit INT64. Zero fee columns
// mean the quoter's default fee.
type Row struct {
	Block       int64  `parquet:"name=block, type=INT64"`
	ReserveAIn  string `parquet:"name=reserve_a_in, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReserveAOut string `parquet:"name=reserve_a_out, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReserveBIn  string `parquet:"name=reserve_b_in, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReserveBOut string `parquet:"name=reserve_b_out, type=BYTE_ARRAY, convertedtype=UTF8"`
	BaseToken   string `parquet:"name=base_token, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeeANum     int64  `parquet:"name=fee_a_num, type=INT64"`
	FeeADen     int64  `parquet:"name=fee_a_den, type=INT64"`
	FeeBNum     int64  `parquet:"name=fee_b_num, type=INT64"`
	FeeBDen     int64  `parquet:"name=fee_b_den, type=INT64"`
}

// Quoter is the read-only half of the engine, priced with a fee per pool.
type Quoter interface {
	GetProfitWithFees(reserveAIn, reserveAOut, reserveBIn, reserveBOut *uint256.Int, feeA, feeB amm.Fee, baseToken common.Address) (*engine.ProfitQuote, error)
}

type Outcome struct {
	Row   Row
	Quote *engine.ProfitQuote
	// "profitable" or the metrics label of the error
	Reason string
	Err    error
}

// RowFromPools records two pools of one pair at block, oriented from base.
func RowFromPools(poolA, poolB amm.Pool, base common.Address, block uint64) (Row, error) {
	aIn, aOut, err := poolA.Oriented(base)
	if err != nil {
		return Row{}, err
	}
	bIn, bOut, err := poolB.Oriented(base)
	if err != nil {
		return Row{}, err
	}
	feeA, feeB := poolA.EffectiveFee(), poolB.EffectiveFee()
	return Row{
		Block:       int64(block),
		ReserveAIn:  aIn.Dec(),
		ReserveAOut: aOut.Dec(),
		ReserveBIn:  bIn.Dec(),
		ReserveBOut: bOut.Dec(),
		BaseToken:   base.Hex(),
		FeeANum:     int64(feeA.Numerator),
		FeeADen:     int64(feeA.Denominator),
		FeeBNum:     int64(feeB.Numerator),
		FeeBDen:     int64(feeB.Denominator),
	}, nil
}

func ReadFile(path string) ([]Row, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]Row, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func WriteFile(path string, rows []Row) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return nil
}

func (r Row) reserves() ([4]*uint256.Int, error) {
	var out [4]*uint256.Int
	for i, s := range []string{r.ReserveAIn, r.ReserveAOut, r.ReserveBIn, r.ReserveBOut} {
		v, err := uint256.FromDecimal(s)
		if err != nil {
			return out, fmt.Errorf("block %d: reserve %q: %w", r.Block, s, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r Row) fees() (amm.Fee, amm.Fee, error) {
	for _, v := range []int64{r.FeeANum, r.FeeADen, r.FeeBNum, r.FeeBDen} {
		if v < 0 {
			return amm.Fee{}, amm.Fee{}, fmt.Errorf("block %d: negative fee %d", r.Block, v)
		}
	}
	feeA := amm.Fee{Numerator: uint64(r.FeeANum), Denominator: uint64(r.FeeADen)}
	feeB := amm.Fee{Numerator: uint64(r.FeeBNum), Denominator: uint64(r.FeeBDen)}
	return feeA, feeB, nil
}

// Evaluate quotes every row. Rows that cannot be quoted get an outcome with
// the reason; only malformed rows stop the run.
func Evaluate(q Quoter, rows []Row) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(rows))
	for _, row := range rows {
		res, err := row.reserves()
		if err != nil {
			return outcomes, err
		}
		if !common.IsHexAddress(row.BaseToken) {
			return outcomes, fmt.Errorf("block %d: bad base token %q", row.Block, row.BaseToken)
		}

		feeA, feeB, err := row.fees()
		if err != nil {
			return outcomes, err
		}

		quote, err := q.GetProfitWithFees(res[0], res[1], res[2], res[3], feeA, feeB, common.HexToAddress(row.BaseToken))
		o := Outcome{Row: row, Quote: quote, Reason: "profitable", Err: err}
		if err != nil {
			o.Reason = execution.Reason(err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// Summary counts outcomes per reason.
func Summary(outcomes []Outcome) map[string]int {
	counts := make(map[string]int)
	for _, o := range outcomes {
		counts[o.Reason]++
	}
	return counts
}

// Unexpected returns the first outcome whose error is not an ordinary no-trade result.
func Unexpected(outcomes []Outcome) error {
	for _, o := range outcomes {
		if o.Err != nil && !engine.IsExpected(o.Err) {
			return fmt.Errorf("block %d: %w", o.Row.Block, o.Err)
		}
	}
	return nil
}
