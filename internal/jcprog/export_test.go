// Public domain.

package jcprog

import (
	"errors"
	"testing"

	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/model"
	"github.com/soniakeys/jointcal/internal/star"
	"github.com/soniakeys/jointcal/internal/wcs"
)

// indexModel exports a WCS whose CRPIX.X is the image index.
type indexModel struct {
	model.AstrometryModel
	fail int
}

var errExport = errors.New("export")

func (m indexModel) ProduceSipWcs(c *star.CcdImage) (*wcs.TanSip, error) {
	if c.Index == m.fail {
		return nil, errExport
	}
	return &wcs.TanSip{CRPIX: geom.Point{X: float64(c.Index)}}, nil
}

func TestExportWcsOrder(t *testing.T) {
	var ccds []*star.CcdImage
	for i := 0; i < 37; i++ {
		ccds = append(ccds, &star.CcdImage{Index: i})
	}
	var got []int
	err := exportWcs(indexModel{fail: -1}, ccds, func(c *star.CcdImage, w *wcs.TanSip) error {
		if int(w.CRPIX.X) != c.Index {
			t.Fatal("mismatch", c.Index, w.CRPIX.X)
		}
		got = append(got, c.Index)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, g := range got {
		if g != i {
			t.Fatal("order", got)
		}
	}
	if len(got) != len(ccds) {
		t.Fatal(len(got))
	}

	n := 0
	err = exportWcs(indexModel{fail: 5}, ccds, func(*star.CcdImage, *wcs.TanSip) error {
		n++
		return nil
	})
	if !errors.Is(err, errExport) || n != 5 {
		t.Fatal(err, n)
	}
	if err := exportWcs(indexModel{}, nil, nil); err != nil {
		t.Fatal(err)
	}
}
