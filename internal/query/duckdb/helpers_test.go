package duckdb

import (
	"math/big"

	"github.com/marcboeker/go-duckdb/v2"
)

func decimalOf(unscaled int64, scale uint8) duckdb.Decimal {
	return duckdb.Decimal{Width: 18, Scale: scale, Value: big.NewInt(unscaled)}
}
