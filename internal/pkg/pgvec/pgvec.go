// Package pgvec holds the textual vector form exchanged with postgres.
package pgvec

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"
)

// Precision is the number of decimal digits kept per component.
const Precision = 6

// Literal renders vec as "[x,y,...]" with fixed precision. It is the form
// written to the store and used as the query literal.
func Literal(vec []float32) string {
	var sb strings.Builder
	sb.Grow(len(vec)*10 + 2)
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', Precision, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Vector is a pgvector value bound as a query argument in Literal form and
// scanned back through pgvector.
type Vector struct {
	pgvector.Vector
}

func NewVector(vec []float32) Vector {
	return Vector{Vector: pgvector.NewVector(vec)}
}

func (v Vector) Value() (driver.Value, error) {
	return Literal(v.Slice()), nil
}

// Parse reads a literal produced by Literal (or by postgres itself).
func Parse(s string) ([]float32, error) {
	var v Vector
	if err := v.Scan(s); err != nil {
		return nil, fmt.Errorf("parse vector literal: %w", err)
	}
	return v.Slice(), nil
}
