// Command profile drives the storage engine through a fill-and-iterate
// workload under a CPU or heap profiler, for tuning chunk size against
// a representative load. It uses the store's immediate API only; no
// command buffers are involved.
//
// Usage:
//
//	go build ./cmd/profile
//	./profile -entities=1000000 -rounds=50
//	go tool pprof -http=":8000" ./profile cpu.pprof
package main

import (
	"flag"
	"fmt"
	"os"

	ecs "github.com/ecsforge/chunked"
	"github.com/felixge/fgprof"
	"github.com/pkg/profile"
	"go.uber.org/automaxprocs/maxprocs"
)

type compA struct{ V uint64 }
type compB struct{ V uint64 }
type compC struct{ V uint64 }

func main() {
	entities := flag.Int("entities", 1_000_000, "entities to reserve per round")
	rounds := flag.Int("rounds", 10, "number of fill+iterate rounds")
	chunkSize := flag.Int("chunk-size", 65536, "chunk size in bytes")
	cpu := flag.Bool("cpu", true, "capture a CPU profile")
	flag.Parse()

	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "profile: maxprocs.Set: %v\n", err)
	}

	fgprofFile, err := os.Create("fgprof.pprof")
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile: creating fgprof output: %v\n", err)
		os.Exit(1)
	}
	defer fgprofFile.Close()
	stopFgprof := fgprof.Start(fgprofFile, fgprof.FormatPprof)
	defer stopFgprof()

	if *cpu {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	} else {
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}

	ecs.Register[compA]()
	ecs.Register[compB]()
	ecs.Register[compC]()

	opts := ecs.DefaultOptions()
	opts.ChunkSize = *chunkSize
	opts.MaxEntities = *entities + 1024

	for r := 0; r < *rounds; r++ {
		if err := run(opts, *entities); err != nil {
			fmt.Fprintf(os.Stderr, "profile: round %d: %v\n", r, err)
			os.Exit(1)
		}
	}
}

func run(opts ecs.Options, numEntities int) error {
	store, err := ecs.NewStore(opts, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	for i := 0; i < numEntities; i++ {
		e, err := store.ReserveImmediate()
		if err != nil {
			return err
		}
		add := ecs.ArchetypeOf(ecs.FlagID[compA](), ecs.FlagID[compB](), ecs.FlagID[compC]())
		if _, err := store.ChangeArchImmediate(e, add, ecs.EmptyArchetype); err != nil {
			return err
		}
		if a := ecs.GetComponentT[compA](store, e); a != nil {
			a.V = uint64(i)
		}
		if b := ecs.GetComponentT[compB](store, e); b != nil {
			b.V = uint64(i)
		}
		if c := ecs.GetComponentT[compC](store, e); c != nil {
			c.V = uint64(i)
		}
	}

	var sum uint64
	ecs.ForEach3(store, func(_ ecs.Entity, a *compA, b *compB, c *compC) {
		sum += a.V + b.V + c.V
	})
	_ = sum
	return nil
}
