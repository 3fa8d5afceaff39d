// This file is part of btags.
//
// btags is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// btags is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with btags.  If not, see <https://www.gnu.org/licenses/>.

// Package schedule is the task scheduler (component C5): a worker
// pool that runs one tag-extraction task per compile unit plus one
// macro-extraction task, sharing the store and the DWARF byte
// buffers. It is built on github.com/sourcegraph/conc/pool rather
// than a hand-rolled sync.WaitGroup/channel pair, following this
// module's policy of reaching for the pack's concurrency libraries
// over stdlib primitives; the teacher itself never runs a worker pool
// over CPU-bound decoding, so this package is new rather than adapted.
package schedule

import (
	"context"
	"debug/dwarf"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/dwarftags/btags/dwarfcursor"
	"github.com/dwarftags/btags/logger"
	"github.com/dwarftags/btags/macroinfo"
	"github.com/dwarftags/btags/store"
	"github.com/dwarftags/btags/tagerrors"
	"github.com/dwarftags/btags/tagextract"
)

// Scheduler runs the extraction pipeline's task-parallel phase.
type Scheduler struct {
	Cursor      *dwarfcursor.Cursor
	Store       store.Store
	Jobs        int
	MacinfoData []byte
	Logger      *logger.Logger
}

// Stats summarizes a completed run, for the CLI's terminal summary.
type Stats struct {
	CompileUnits int
	Tags         int
	Macros       int
}

// Run drives the whole pipeline: it enumerates compile units,
// eagerly runs each one's preamble on the producer, enqueues each
// CU's tag pass onto the pool, then enqueues the macro task after
// every preamble has run. It returns once every task has completed or
// ctx is cancelled.
//
// The producer itself runs as a pool task (spec §4.5's
// "producer-on-the-pool" device, also used by sourcegraph/conc's own
// documented idiom for surfacing producer errors through the same
// channel as worker errors).
func (s *Scheduler) Run(ctx context.Context) (Stats, error) {
	if s.Logger == nil {
		s.Logger = logger.Default()
	}
	jobs := s.Jobs
	if jobs < 1 {
		jobs = 1
	}

	// one extra slot for the producer, which occupies a pool goroutine
	// for the whole run; without it Jobs=1 would leave no slot for the
	// tasks the producer submits, and ep.Go would block forever.
	ep := pool.New().WithMaxGoroutines(jobs + 1).WithErrors()

	var statsMu sync.Mutex
	var stats Stats
	var cuIDs []int
	var fileMaps []tagextract.FileMap

	ep.Go(func() error {
		cuID := 0
		for {
			select {
			case <-ctx.Done():
				return tagerrors.Errorf(tagerrors.UserInterrupt, "schedule: interrupted")
			default:
			}

			top, err := s.Cursor.NextCU()
			if err != nil {
				return err
			}
			if top == nil {
				break
			}
			cuID++

			cu, err := s.Cursor.CU(top)
			if err != nil {
				return tagerrors.WithTask(cuID, err)
			}

			task := &tagextract.Task{CU: cu, Store: s.Store, CUID: cuID, Logger: s.Logger}
			cuRecord, files, err := task.Preamble()
			if err != nil {
				return tagerrors.WithTask(cuID, err)
			}

			stats.CompileUnits++
			// .debug_macinfo holds one list per CU that carries
			// DW_AT_macro_info, in CU order
			if _, ok := top.AttrRaw(dwarf.AttrMacroInfo); ok {
				cuIDs = append(cuIDs, cuID)
				fileMaps = append(fileMaps, files)
			}

			ep.Go(func() error {
				select {
				case <-ctx.Done():
					return tagerrors.Errorf(tagerrors.UserInterrupt, "schedule: interrupted")
				default:
				}
				result, err := task.TagPassFoldCommit(cuRecord, files)
				if err != nil {
					return tagerrors.WithTask(task.CUID, err)
				}
				statsMu.Lock()
				stats.Tags += result.TagCount
				statsMu.Unlock()
				return nil
			})
		}

		if len(s.MacinfoData) > 0 {
			capturedIDs := append([]int(nil), cuIDs...)
			capturedMaps := append([]tagextract.FileMap(nil), fileMaps...)
			ep.Go(func() error {
				lists, err := macroinfo.ParseLists(s.MacinfoData)
				if err != nil {
					return err
				}
				n := len(lists)
				if n > len(capturedIDs) {
					n = len(capturedIDs)
				}
				if err := macroinfo.Emit(s.Store, lists[:n], capturedIDs[:n], capturedMaps[:n]); err != nil {
					return err
				}
				macroCount := 0
				for _, recs := range lists[:n] {
					macroCount += len(recs)
				}
				statsMu.Lock()
				stats.Macros += macroCount
				statsMu.Unlock()
				return nil
			})
		}

		return nil
	})

	if err := ep.Wait(); err != nil {
		return stats, err
	}

	return stats, nil
}
