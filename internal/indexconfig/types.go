package indexconfig

import (
	"fmt"
	"strings"
)

// Kind identifies the index strategy variant.
type Kind string

const (
	KindHNSW       Kind = "hnsw"
	KindIVF        Kind = "ivf"
	KindFlat       Kind = "flat"
	KindBruteForce Kind = "brute_force"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch s := strings.ToLower(strings.TrimSpace(string(text))); s {
	case "hnsw":
		*k = KindHNSW
	case "ivf":
		*k = KindIVF
	case "flat":
		*k = KindFlat
	case "brute_force", "bruteforce", "brute-force":
		*k = KindBruteForce
	default:
		return fmt.Errorf("unknown index type %q", string(text))
	}
	return nil
}

// HNSWParams tunes a hierarchical navigable small world graph.
type HNSWParams struct {
	EfConstruction int `koanf:"ef_construction" json:"ef_construction"`
	MaxConnections int `koanf:"max_connections" json:"max_connections"`
	// EfSearch is the candidate list size at query time. Zero lets the
	// backend choose.
	EfSearch int `koanf:"ef_search" json:"ef_search,omitempty"`
}

// IVFParams tunes an inverted-file index.
type IVFParams struct {
	NCentroids int `koanf:"ncentroids" json:"ncentroids"`
	NIter      int `koanf:"niter" json:"niter"`
	NProbe     int `koanf:"nprobe" json:"nprobe,omitempty"`
}

// FlatParams configures an exhaustive flat index.
type FlatParams struct {
	Dimension int `koanf:"dimension" json:"dimension"`
}

// QuantizationParams configures vector compression where the backend
// supports it.
type QuantizationParams struct {
	Bits          int    `koanf:"bits" json:"bits"`
	QuantizerType string `koanf:"quantizer_type" json:"quantizer_type"`
}

// Default strategy parameters, used when a variant is selected without
// explicit parameters.
var (
	DefaultHNSW = HNSWParams{EfConstruction: 200, MaxConnections: 16}
	DefaultIVF  = IVFParams{NCentroids: 256, NIter: 10, NProbe: 8}
)

// IndexType is a tagged variant: Kind selects which of the parameter blocks
// applies. Use the constructors rather than building it by hand.
type IndexType struct {
	Kind Kind        `koanf:"kind" json:"kind"`
	HNSW *HNSWParams `koanf:"hnsw" json:"hnsw,omitempty"`
	IVF  *IVFParams  `koanf:"ivf" json:"ivf,omitempty"`
	Flat *FlatParams `koanf:"flat" json:"flat,omitempty"`
}

// HNSW returns an HNSW index type.
func HNSW(p HNSWParams) IndexType { return IndexType{Kind: KindHNSW, HNSW: &p} }

// IVF returns an IVF index type.
func IVF(p IVFParams) IndexType { return IndexType{Kind: KindIVF, IVF: &p} }

// Flat returns a flat index type.
func Flat(p FlatParams) IndexType { return IndexType{Kind: KindFlat, Flat: &p} }

// BruteForce returns an exhaustive-scan index type.
func BruteForce() IndexType { return IndexType{Kind: KindBruteForce} }

// Approximate reports whether the variant trades recall for speed.
func (t IndexType) Approximate() bool {
	return t.Kind == KindHNSW || t.Kind == KindIVF
}

// HNSWParams returns the HNSW parameters, falling back to DefaultHNSW.
func (t IndexType) HNSWParams() HNSWParams {
	if t.HNSW != nil {
		return *t.HNSW
	}
	return DefaultHNSW
}

// IVFParams returns the IVF parameters, falling back to DefaultIVF.
func (t IndexType) IVFParams() IVFParams {
	if t.IVF != nil {
		return *t.IVF
	}
	return DefaultIVF
}

func (t IndexType) String() string {
	switch t.Kind {
	case KindHNSW:
		p := t.HNSWParams()
		return fmt.Sprintf("hnsw(ef_construction=%d, m=%d)", p.EfConstruction, p.MaxConnections)
	case KindIVF:
		p := t.IVFParams()
		return fmt.Sprintf("ivf(ncentroids=%d, niter=%d)", p.NCentroids, p.NIter)
	case KindFlat:
		if t.Flat != nil {
			return fmt.Sprintf("flat(dimension=%d)", t.Flat.Dimension)
		}
		return "flat"
	}
	return string(t.Kind)
}

// validate checks that the variant is known and carries only its own
// parameter block.
func (t IndexType) validate(dims int) error {
	switch t.Kind {
	case KindHNSW:
		if t.IVF != nil || t.Flat != nil {
			return fmt.Errorf("hnsw index carries foreign parameters")
		}
		if p := t.HNSWParams(); p.EfConstruction <= 0 || p.MaxConnections <= 0 || p.EfSearch < 0 {
			return fmt.Errorf("hnsw ef_construction and max_connections must be > 0")
		}
	case KindIVF:
		if t.HNSW != nil || t.Flat != nil {
			return fmt.Errorf("ivf index carries foreign parameters")
		}
		if p := t.IVFParams(); p.NCentroids <= 0 || p.NIter <= 0 || p.NProbe < 0 {
			return fmt.Errorf("ivf ncentroids and niter must be > 0")
		}
	case KindFlat:
		if t.HNSW != nil || t.IVF != nil {
			return fmt.Errorf("flat index carries foreign parameters")
		}
		if t.Flat != nil && t.Flat.Dimension != 0 && t.Flat.Dimension != dims {
			return fmt.Errorf("flat dimension %d differs from index dimensions %d", t.Flat.Dimension, dims)
		}
	case KindBruteForce:
		if t.HNSW != nil || t.IVF != nil || t.Flat != nil {
			return fmt.Errorf("brute_force index takes no parameters")
		}
	default:
		return fmt.Errorf("unknown index type %q", t.Kind)
	}
	return nil
}
