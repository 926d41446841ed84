// Public domain.

// Package projection assigns images to projection groups, each with its own
// tangent point.
package projection

import (
	"fmt"

	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/star"
)

// Handler gives the sky to tangent plane projection of an image's group.
type Handler interface {
	Transform(c *star.CcdImage) *geom.TanProjection
}

// OneTPPerShoot puts all images in one group about a common tangent point.
type OneTPPerShoot struct {
	tp *geom.TanProjection
}

// NewOneTPPerShoot assigns tp to every image in ccds.
func NewOneTPPerShoot(ccds []*star.CcdImage, tp *geom.TanProjection) *OneTPPerShoot {
	for _, c := range ccds {
		c.TP = tp
	}
	return &OneTPPerShoot{tp}
}

// Transform implements Handler.
func (h *OneTPPerShoot) Transform(*star.CcdImage) *geom.TanProjection { return h.tp }

// OneTPPerVisit groups images by visit.  The tangent point of a visit is
// the center of its footprint.
type OneTPPerVisit struct {
	tps map[int]*geom.TanProjection
}

// NewOneTPPerVisit assigns each image of ccds the projection of its visit.
func NewOneTPPerVisit(ccds []*star.CcdImage) *OneTPPerVisit {
	byVisit := map[int][]*star.CcdImage{}
	for _, c := range ccds {
		byVisit[c.Visit] = append(byVisit[c.Visit], c)
	}
	h := &OneTPPerVisit{tps: make(map[int]*geom.TanProjection, len(byVisit))}
	for v, cs := range byVisit {
		h.tps[v] = star.Footprint(cs).TanProjection()
	}
	for _, c := range ccds {
		c.TP = h.tps[c.Visit]
	}
	return h
}

// Transform implements Handler.
func (h *OneTPPerVisit) Transform(c *star.CcdImage) *geom.TanProjection {
	return h.tps[c.Visit]
}

// New selects a handler by name, "visit" or "shoot".
func New(kind string, ccds []*star.CcdImage, common *geom.TanProjection) (Handler, error) {
	switch kind {
	case "visit":
		return NewOneTPPerVisit(ccds), nil
	case "shoot":
		return NewOneTPPerShoot(ccds, common), nil
	}
	return nil, fmt.Errorf("unknown projection %q", kind)
}
