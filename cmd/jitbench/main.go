// Command jitbench runs a synthetic compile/invalidate workload against
// internal/jit.Cache and plots the live-block-count curve to a PNG with
// gonum/plot.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kallisti-dev/ndscore/internal/addressmap"
	"github.com/kallisti-dev/ndscore/internal/jit"
	"github.com/kallisti-dev/ndscore/internal/types"
)

// syntheticCompiler hands out a Translation covering a fixed-size window
// starting at localOffset — a stand-in for the real ARM decoder, just
// enough to exercise Cache's bookkeeping under a repeatable load.
type syntheticCompiler struct {
	next uintptr
}

func (c *syntheticCompiler) Arena() []byte { return nil }

func (c *syntheticCompiler) Translate(cpu types.CPU, region addressmap.Region, localOffset uint32, cfg *jit.Config) (*jit.Translation, error) {
	c.next++
	size := uint32(cfg.MaxBlockSize * 4)
	return &jit.Translation{
		Entry:        c.next,
		Ranges:       []jit.AddrRange{{Region: region, Start: localOffset, End: localOffset + size}},
		Instructions: cfg.MaxBlockSize,
	}, nil
}

func main() {
	iterations := flag.Int("n", 20000, "number of compile/invalidate iterations")
	invalidateRate := flag.Float64("invalidate-rate", 0.1, "fraction of iterations that invalidate instead of compiling")
	out := flag.String("out", "jitbench.png", "output PNG path")
	seed := flag.Int64("seed", 1, "PRNG seed, for a repeatable workload")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	cache := jit.New(jit.WithMaxBlockSize(8))
	comp := &syntheticCompiler{}

	const region = addressmap.ITCM
	regionSize, _ := addressmap.Size(region)

	liveCounts := make(plotter.XYs, 0, *iterations)
	var hits, misses int

	for i := 0; i < *iterations; i++ {
		offset := uint32(rng.Intn(int(regionSize/32))) * 32

		if rng.Float64() < *invalidateRate {
			cache.InvalidateByAddress(region, offset)
		} else {
			if _, ok := cache.Lookup(types.ARM9, region, offset); ok {
				hits++
			} else {
				misses++
			}
			if _, err := cache.CompileBlock(types.ARM9, region, offset, comp); err != nil {
				fmt.Fprintf(os.Stderr, "compile failed at %#x: %v\n", offset, err)
			}
		}

		if i%100 == 0 {
			st := cache.Stats()
			liveCounts = append(liveCounts, plotter.XY{X: float64(i), Y: float64(st.Live)})
		}
	}

	fmt.Printf("hits=%d misses=%d hit-rate=%.2f%%\n", hits, misses, 100*float64(hits)/float64(hits+misses))
	fmt.Printf("final live-set digest=%#016x\n", cache.ContentDigest())

	p := plot.New()
	p.Title.Text = "JIT cache live-block count"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "live blocks"

	line, err := plotter.NewLine(liveCounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plot: %v\n", err)
		os.Exit(1)
	}
	p.Add(line)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, *out); err != nil {
		fmt.Fprintf(os.Stderr, "plot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}
