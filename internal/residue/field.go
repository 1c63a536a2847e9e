package residue

import (
	"fmt"
	"math"
)

// #region field
// Field is an RBF potential over latent space:
//
//	R(z) = Σ mᵢ · exp(-‖z - cᵢ‖² / (2σᵢ²))
//
// Dents are kept in insertion order so merges are deterministic.
type Field struct {
	dim   int
	dents []Dent
}

// NewField creates an empty field over vectors of length dim.
func NewField(dim int) *Field {
	return &Field{dim: dim}
}

// #endregion field

// #region add-dent
// AddDent appends a copy of the dent.
func (f *Field) AddDent(center []float32, magnitude, sigma float64) error {
	d := Dent{Center: center, Magnitude: magnitude, Sigma: sigma}
	if err := f.validate(d); err != nil {
		return fmt.Errorf("add dent: %w", err)
	}
	d.Center = append([]float32(nil), center...)
	f.dents = append(f.dents, d)
	return nil
}

// #endregion add-dent

// #region potential
// Potential evaluates the field at point. An empty field is zero everywhere.
func (f *Field) Potential(point []float32) (float64, error) {
	if len(point) != f.dim {
		return 0, fmt.Errorf("potential: point length %d, want %d: %w", len(point), f.dim, ErrDimensionMismatch)
	}
	var acc float64
	for _, d := range f.dents {
		acc += d.Magnitude * math.Exp(-SquaredDistance(point, d.Center)/(2*d.Sigma*d.Sigma))
	}
	return acc, nil
}

// #endregion potential

// #region accessors
// Count is the number of dents held.
func (f *Field) Count() int { return len(f.dents) }

// Dim is the dimensionality of dent centers.
func (f *Field) Dim() int { return f.dim }

// Dents returns deep copies in insertion order.
func (f *Field) Dents() []Dent {
	out := make([]Dent, len(f.dents))
	for i, d := range f.dents {
		out[i] = Dent{
			Center:    append([]float32(nil), d.Center...),
			Magnitude: d.Magnitude,
			Sigma:     d.Sigma,
		}
	}
	return out
}

// TotalMagnitude sums every dent's magnitude.
func (f *Field) TotalMagnitude() float64 {
	var sum float64
	for _, d := range f.dents {
		sum += d.Magnitude
	}
	return sum
}

// #endregion accessors

// #region replace
// Replace swaps the whole dent collection. Nothing changes if any dent is
// invalid.
func (f *Field) Replace(dents []Dent) error {
	next := make([]Dent, 0, len(dents))
	for i, d := range dents {
		if err := f.validate(d); err != nil {
			return fmt.Errorf("replace dent %d: %w", i, err)
		}
		next = append(next, Dent{
			Center:    append([]float32(nil), d.Center...),
			Magnitude: d.Magnitude,
			Sigma:     d.Sigma,
		})
	}
	f.dents = next
	return nil
}

// #endregion replace

// #region validation
func (f *Field) validate(d Dent) error {
	if len(d.Center) != f.dim {
		return fmt.Errorf("center length %d, want %d: %w", len(d.Center), f.dim, ErrDimensionMismatch)
	}
	if !(d.Sigma > 0) || math.IsInf(d.Sigma, 0) {
		return fmt.Errorf("sigma %v: %w", d.Sigma, ErrInvalidSigma)
	}
	if !(d.Magnitude >= 0) || math.IsInf(d.Magnitude, 0) {
		return fmt.Errorf("magnitude %v: %w", d.Magnitude, ErrNegativeMagnitude)
	}
	for _, c := range d.Center {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return ErrInvalidCenter
		}
	}
	return nil
}

// #endregion validation

// #region geometry
// SquaredDistance is the squared Euclidean distance between equal-length vectors.
func SquaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Distance is the Euclidean distance between equal-length vectors.
func Distance(a, b []float32) float64 {
	return math.Sqrt(SquaredDistance(a, b))
}

// #endregion geometry
