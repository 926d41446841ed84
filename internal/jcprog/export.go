// Public domain.

package jcprog

import (
	"fmt"
	"runtime"

	"github.com/soniakeys/jointcal/internal/model"
	"github.com/soniakeys/jointcal/internal/star"
	"github.com/soniakeys/jointcal/internal/wcs"
)

type exportJob struct {
	c   *star.CcdImage
	rch chan exportResult // ticket for the result
}

type exportResult struct {
	w   *wcs.TanSip
	err error
}

// exportWcs produces the SIP WCS of each image of ccds on up to GOMAXPROCS
// workers and calls fn with the results in ccds order.  It returns the
// first error from the export or from fn.
func exportWcs(m model.AstrometryModel, ccds []*star.CcdImage, fn func(*star.CcdImage, *wcs.TanSip) error) error {
	maxWorkers := runtime.GOMAXPROCS(0)
	if maxWorkers > len(ccds) {
		maxWorkers = len(ccds)
	}
	jobs := make(chan exportJob)
	// tickets keeps results in submission order.  it is buffered so a
	// fast worker can drop off a result without waiting on slower ones.
	tickets := make(chan chan exportResult, maxWorkers*2)

	// dispatcher
	go func() {
		for _, c := range ccds {
			rch := make(chan exportResult, 1)
			jobs <- exportJob{c, rch}
			tickets <- rch
		}
		close(jobs)
		close(tickets)
	}()

	for n := 0; n < maxWorkers; n++ {
		go func() {
			for j := range jobs {
				w, err := m.ProduceSipWcs(j.c)
				j.rch <- exportResult{w, err} // buffered
			}
		}()
	}

	// drain every ticket so the dispatcher always finishes
	var first error
	for _, c := range ccds {
		r := <-<-tickets
		if first != nil {
			continue
		}
		if r.err != nil {
			first = fmt.Errorf("%s: wcs export: %w", c.Name, r.err)
			continue
		}
		first = fn(c, r.w)
	}
	return first
}
