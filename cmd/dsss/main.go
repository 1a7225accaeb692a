// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/compr"
	"github.com/sneller-dsss/dsss/config"
	"github.com/sneller-dsss/dsss/container"
	"github.com/sneller-dsss/dsss/dedup"
	"github.com/sneller-dsss/dsss/generate"
	"github.com/sneller-dsss/dsss/hashing"
	"github.com/sneller-dsss/dsss/localsort"
	"github.com/sneller-dsss/dsss/measure"
	"github.com/sneller-dsss/dsss/sorter"
	"github.com/sneller-dsss/dsss/verify"
)

var (
	dashP int // ranks to simulate (no real MPI binding; spec.md §1 non-goal)
	dashN int
	dashM int
	dashR float64
	dashI int
	dashX bool
	dashC bool
	dashCC bool
	dashL bool
	dashPP bool
	dashD bool
	dashG string
	dashA string
	dashS string
	dashK string
	dashY string
	dashT bool

	dashCodec string
)

func init() {
	flag.IntVar(&dashP, "P", 4, "number of ranks to simulate")
	flag.IntVar(&dashN, "n", 1000, "strings per rank")
	flag.IntVar(&dashM, "m", 16, "string length")
	flag.Float64Var(&dashR, "r", 1.0, "distinct/total ratio")
	flag.IntVar(&dashI, "i", 1, "iterations")
	flag.BoolVar(&dashX, "x", false, "strong scaling (n is a total divided across ranks, not per rank)")
	flag.BoolVar(&dashC, "c", false, "check output is sorted and a permutation of the input")
	flag.BoolVar(&dashCC, "C", false, "exhaustive check (also verifies LCP self-consistency)")
	flag.BoolVar(&dashL, "l", false, "lcp compression")
	flag.BoolVar(&dashPP, "p", false, "prefix compression (requires -l)")
	flag.BoolVar(&dashD, "d", false, "prefix doubling duplicate detection")
	flag.StringVar(&dashG, "g", "none", "golomb mode: none, sequential, pipelined")
	flag.StringVar(&dashA, "a", "direct", "alltoall routine: small, direct, combined")
	flag.StringVar(&dashS, "s", "strings", "sample policy: strings, chars, indexed-strings, indexed-chars")
	flag.StringVar(&dashK, "k", "random", "generator: random, file, file_segment, suffix, window, difference_cover")
	flag.StringVar(&dashY, "y", "", "input path for file-backed generators")
	flag.BoolVar(&dashT, "t", false, "print measurement summary to stderr")
	flag.StringVar(&dashCodec, "codec", "", "wire codec for the string exchange: \"\" (none) or s2")
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, "dsss:", err)
	os.Exit(1)
}

func buildConfig(schedule []int) (config.Config, error) {
	golombMode, err := config.ParseGolombMode(dashG)
	if err != nil {
		return config.Config{}, err
	}
	alltoall, err := config.ParseAlltoallRoutine(dashA)
	if err != nil {
		return config.Config{}, err
	}
	policy, err := config.ParseSamplePolicy(dashS)
	if err != nil {
		return config.Config{}, err
	}
	genKind, err := config.ParseGeneratorKind(dashK)
	if err != nil {
		return config.Config{}, err
	}
	return config.Config{
		NStrings:          dashN,
		StringLen:         dashM,
		DNRatio:           dashR,
		Iterations:        dashI,
		StrongScaling:     dashX,
		Check:             dashC,
		ExhaustiveCheck:   dashCC,
		LcpCompression:    dashL,
		PrefixCompression: dashPP,
		PrefixDoubling:    dashD,
		Golomb:            golombMode,
		Alltoall:          alltoall,
		Policy:            policy,
		GeneratorKind:     genKind,
		InputPath:         dashY,
		LevelSchedule:     schedule,
	}, nil
}

func parseSchedule(args []string) ([]int, error) {
	schedule := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("dsss: level schedule entry %q is not an integer: %w", a, err)
		}
		schedule[i] = v
	}
	return schedule, nil
}

// rankResult is what one rank's goroutine reports back to main after
// running every iteration.
type rankResult struct {
	rank       int
	sortedOK   bool
	permOK     bool
	lcpOK      bool
	err        error
}

func runRank(ctx context.Context, rank int, rootComm comm.Communicator, cfg config.Config, sink measure.Sink) rankResult {
	ctx = measure.WithSink(ctx, sink)

	nStrings := cfg.NStrings
	if cfg.StrongScaling {
		nStrings /= rootComm.Size()
	}
	genCfg := generate.Config{
		Kind:     cfg.GeneratorKind,
		NStrings: nStrings,
		MinLen:   cfg.StringLen,
		MaxLen:   cfg.StringLen,
		DNRatio:  cfg.DNRatio,
		Path:     cfg.InputPath,
		BytesPerRank: nStrings * cfg.StringLen,
		Step:         1,
		WindowLen:    cfg.StringLen,
		Modulus:      7,
	}

	result := rankResult{rank: rank, sortedOK: true, permOK: true, lcpOK: true}
	for iter := 0; iter < cfg.Iterations; iter++ {
		genTimer := measure.StartTimer(sink, "generate", "duration")
		raw, err := generate.Generate(genCfg, rank, rootComm.Size())
		genTimer.Stop()
		if err != nil {
			result.err = err
			return result
		}

		original := &container.StringContainer{Arena: raw.Arena, Strings: append([]container.String(nil), raw.Strings...)}

		lc := container.NewStringLcpContainer(raw)
		sortTimer := measure.StartTimer(sink, "localsort", "duration")
		localsort.Sort(lc)
		sortTimer.Stop()

		grid, err := comm.BuildGrid(ctx, rootComm, cfg.LevelSchedule)
		if err != nil {
			result.err = err
			return result
		}

		if cfg.PrefixDoubling {
			hasher := hashing.NewSipHasher(0x0123456789abcdef, 0xfedcba9876543210)
			dbTimer := measure.StartTimer(sink, "dedup", "duration")
			depths, err := dedup.PrefixDouble(ctx, lc.StringContainer, lc.Lcps, hasher, grid, 1, cfg.Golomb != config.GolombNone)
			dbTimer.Stop()
			if err != nil {
				result.err = err
				return result
			}
			for i, d := range depths {
				lc.StringContainer.Strings[i].Depth = uint32(d)
			}
			sink.Record(measure.Event{Phase: "dedup", Key: "strings_probed", Value: float64(len(depths))})
		}

		opt := sorter.Options{Policy: cfg.Policy, SampleRate: 1, ExchangeOpt: cfg.ExchangeOptions()}
		if dashCodec != "" {
			opt.ExchangeOpt.Codec = compr.Compression(dashCodec)
			opt.ExchangeOpt.Decodec = compr.Decompression(dashCodec)
		}

		sortAllTimer := measure.StartTimer(sink, "sort", "duration")
		sorted, err := sorter.Sort(ctx, lc, grid, opt)
		sortAllTimer.Stop()
		if err != nil {
			result.err = err
			return result
		}
		sink.Record(measure.Event{Phase: "sort", Key: "output_strings", Value: float64(sorted.Len())})

		if cfg.Check || cfg.ExhaustiveCheck {
			ok, err := verify.IsSortedGlobally(ctx, sorted.StringContainer, grid.Root())
			if err != nil {
				result.err = err
				return result
			}
			result.sortedOK = result.sortedOK && ok

			hasher := hashing.NewXXHasher(0)
			permOK, err := verify.IsPermutationOfInput(ctx, original, sorted.StringContainer, hasher, grid.Root())
			if err != nil {
				result.err = err
				return result
			}
			result.permOK = result.permOK && permOK
		}
		if cfg.ExhaustiveCheck {
			result.lcpOK = result.lcpOK && sorted.IsSelfConsistent()
		}
	}
	return result
}

func main() {
	flag.Parse()
	schedule, err := parseSchedule(flag.Args())
	if err != nil {
		exit(err)
	}

	cfg, err := buildConfig(schedule)
	if err != nil {
		exit(err)
	}
	if err := cfg.Validate(dashP); err != nil {
		exit(err)
	}

	comms := comm.NewLocal(dashP)
	sink := measure.NewCounting()
	ctx := context.Background()

	// errgroup cancels the shared context as soon as any rank's
	// goroutine returns an error, so a rank that hits a fatal failure
	// doesn't leave the rest of the group blocked forever on a
	// collective the failed rank will never reach.
	results := make([]rankResult, dashP)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for r := 0; r < dashP; r++ {
		r := r
		g.Go(func() error {
			res := runRank(gctx, r, comms[r], cfg, sink)
			results[r] = res
			return res.err
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	exitCode := 0
	for _, res := range results {
		if res.err != nil {
			fmt.Fprintf(os.Stderr, "dsss: rank %d: %v\n", res.rank, res.err)
			exitCode = 1
			continue
		}
		if (cfg.Check || cfg.ExhaustiveCheck) && !res.sortedOK {
			fmt.Fprintf(os.Stderr, "dsss: rank %d: output is not globally sorted\n", res.rank)
			exitCode = 1
		}
		if (cfg.Check || cfg.ExhaustiveCheck) && !res.permOK {
			fmt.Fprintf(os.Stderr, "dsss: rank %d: output is not a permutation of the input\n", res.rank)
			exitCode = 1
		}
		if cfg.ExhaustiveCheck && !res.lcpOK {
			fmt.Fprintf(os.Stderr, "dsss: rank %d: lcp array is not self-consistent\n", res.rank)
			exitCode = 1
		}
	}

	if dashT {
		fmt.Fprintf(os.Stderr, "total elapsed: %v\n", elapsed)
		sink.WriteSummary(os.Stderr)
	}
	os.Exit(exitCode)
}
