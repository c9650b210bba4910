package attention

import (
	"encoding/gob"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Weight persistence via gob so a demo can be re-run with identical
// matrices. Only numeric weights are serialized; caches are rebuilt on
// the next forward pass.

type headData struct {
	DModel, DK, DV int
	Causal         bool

	WqData []float64
	WkData []float64
	WvData []float64
}

type multiData struct {
	H, DModel, DHead int
	Causal           bool

	WqData [][]float64
	WkData [][]float64
	WvData [][]float64
	WoData []float64
}

func denseData(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	out := make([]float64, len(raw.Data))
	copy(out, raw.Data)
	return out
}

// Save writes the head's weights to filename.
func (h *Head) Save(filename string) error {
	data := headData{
		DModel: h.DModel,
		DK:     h.DK,
		DV:     h.DV,
		Causal: h.Causal,
		WqData: denseData(h.Wquery),
		WkData: denseData(h.Wkey),
		WvData: denseData(h.Wvalue),
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(&data)
}

// LoadHead restores a head saved with Head.Save.
func LoadHead(filename string) (*Head, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var data headData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	if len(data.WqData) != data.DK*data.DModel ||
		len(data.WkData) != data.DK*data.DModel ||
		len(data.WvData) != data.DV*data.DModel {
		return nil, fmt.Errorf("decode %s: weight sizes inconsistent with dims", filename)
	}
	return &Head{
		DModel:    data.DModel,
		DK:        data.DK,
		DV:        data.DV,
		Causal:    data.Causal,
		Wquery:    mat.NewDense(data.DK, data.DModel, data.WqData),
		Wkey:      mat.NewDense(data.DK, data.DModel, data.WkData),
		Wvalue:    mat.NewDense(data.DV, data.DModel, data.WvData),
		maskCache: make(map[int]*mat.Dense),
	}, nil
}

// Save writes all head weights plus the output projection to filename.
func (m *MultiHead) Save(filename string) error {
	data := multiData{
		H:      m.H,
		DModel: m.DModel,
		DHead:  m.DHead,
		Causal: m.Causal,
		WoData: denseData(m.Woutput),
	}
	for h := 0; h < m.H; h++ {
		data.WqData = append(data.WqData, denseData(m.Wquery[h]))
		data.WkData = append(data.WkData, denseData(m.Wkey[h]))
		data.WvData = append(data.WvData, denseData(m.Wvalue[h]))
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(&data)
}

// LoadMultiHead restores a layer saved with MultiHead.Save.
func LoadMultiHead(filename string) (*MultiHead, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var data multiData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	if data.H <= 0 || data.DHead*data.H != data.DModel {
		return nil, fmt.Errorf("decode %s: head dims %dx%d inconsistent with dModel %d",
			filename, data.H, data.DHead, data.DModel)
	}
	if len(data.WqData) != data.H || len(data.WkData) != data.H || len(data.WvData) != data.H {
		return nil, fmt.Errorf("decode %s: expected %d heads", filename, data.H)
	}
	if len(data.WoData) != data.DModel*data.DModel {
		return nil, fmt.Errorf("decode %s: weight sizes inconsistent with dims", filename)
	}
	for h := 0; h < data.H; h++ {
		want := data.DHead * data.DModel
		if len(data.WqData[h]) != want || len(data.WkData[h]) != want || len(data.WvData[h]) != want {
			return nil, fmt.Errorf("decode %s: weight sizes inconsistent with dims", filename)
		}
	}
	m := &MultiHead{
		H:         data.H,
		DModel:    data.DModel,
		DHead:     data.DHead,
		Causal:    data.Causal,
		Wquery:    make([]*mat.Dense, data.H),
		Wkey:      make([]*mat.Dense, data.H),
		Wvalue:    make([]*mat.Dense, data.H),
		Woutput:   mat.NewDense(data.DModel, data.DModel, data.WoData),
		Q:         make([]*mat.Dense, data.H),
		K:         make([]*mat.Dense, data.H),
		V:         make([]*mat.Dense, data.H),
		Scores:    make([]*mat.Dense, data.H),
		A:         make([]*mat.Dense, data.H),
		O:         make([]*mat.Dense, data.H),
		maskCache: make(map[int]*mat.Dense),
	}
	for h := 0; h < data.H; h++ {
		m.Wquery[h] = mat.NewDense(data.DHead, data.DModel, data.WqData[h])
		m.Wkey[h] = mat.NewDense(data.DHead, data.DModel, data.WkData[h])
		m.Wvalue[h] = mat.NewDense(data.DHead, data.DModel, data.WvData[h])
	}
	return m, nil
}
