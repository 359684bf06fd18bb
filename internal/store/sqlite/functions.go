package sqlite

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
)

// DriverName is the database/sql driver registered by this package. It is
// the stock go-sqlite3 driver with the scoring functions attached to every
// connection.
const DriverName = "sqlite3_vectorindex"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("vector_similarity", vectorSimilarity, true); err != nil {
					return fmt.Errorf("register vector_similarity: %w", err)
				}
				if err := conn.RegisterFunc("lexical_score", lexicalScore, true); err != nil {
					return fmt.Errorf("register lexical_score: %w", err)
				}
				return nil
			},
		})
	})
}

// vectorSimilarity scores two encoded vectors with the named metric.
func vectorSimilarity(metric string, a, b []byte) (float64, error) {
	fn, err := similarity.Parse(metric)
	if err != nil {
		return 0, err
	}
	va, err := decodeVector(a)
	if err != nil {
		return 0, err
	}
	vb, err := decodeVector(b)
	if err != nil {
		return 0, err
	}
	if len(va) != len(vb) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(va), len(vb))
	}
	return similarity.Score(fn, va, vb)
}

// lexicalScore scores the string values of a JSON metadata document
// against a query.
func lexicalScore(metadata, query string) float64 {
	var doc any
	if err := json.Unmarshal([]byte(metadata), &doc); err != nil {
		return similarity.Lexical(metadata, query)
	}
	return similarity.Lexical(similarity.MetadataText(doc), query)
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("encoded vector has %d bytes, not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
