// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cluster starts bigslice sessions from command line system
// flags and describes the shape of the resulting cluster. It also
// registers the "pbs" system provider, which runs workers as local
// processes sized from the PBS batch job that hosts the driver.
package cluster

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigslice/exec"
	"github.com/grailbio/bigslice/slicecmd"
	"github.com/grailbio/bigslice/sliceflags"
)

// NCPUsEnv is the environment variable in which PBS reports the
// number of CPUs allocated to a job.
const NCPUsEnv = "PBS_NCPUS"

func init() {
	sliceflags.RegisterSystemProvider("pbs", new(PBS))
	sliceflags.RegisterSystemProfile("gadi", "pbs:threads=1")
}

// Info describes the shape of a cluster.
type Info struct {
	// Workers is the number of worker processes.
	Workers int
	// Threads is the number of tasks each worker runs concurrently.
	Threads int
}

func (i Info) String() string {
	return fmt.Sprintf("%d workers x %d threads", i.Workers, i.Threads)
}

// Topology is implemented by system providers that know the shape of
// the clusters they start.
type Topology interface {
	Topology(parallelism int) Info
}

// Describe returns the shape of a cluster started by provider with
// the given parallelism. In-process execution is a single worker;
// local bigmachine workers each run as many threads as the system's
// Maxprocs.
func Describe(provider sliceflags.Provider, parallelism int) Info {
	if parallelism < 1 {
		parallelism = 1
	}
	if t, ok := provider.(Topology); ok {
		return t.Topology(parallelism)
	}
	if provider != nil && provider.Name() == "local" {
		return split(parallelism, bigmachine.Local.Maxprocs())
	}
	return Info{Workers: 1, Threads: parallelism}
}

func split(parallelism, threads int) Info {
	if threads < 1 {
		threads = 1
	}
	if threads > parallelism {
		threads = parallelism
	}
	return Info{
		Workers: (parallelism + threads - 1) / threads,
		Threads: threads,
	}
}

// Start starts a bigslice session configured by bf, displays its
// status as the flags request, and returns it with the shape of its
// cluster.
func Start(bf sliceflags.Flags) (*exec.Session, Info, error) {
	sess, err := slicecmd.Init(bf)
	if err != nil {
		return nil, Info{}, err
	}
	info := Describe(bf.System.Provider, sess.Parallelism())
	log.Printf("cluster: %s on system %s", info, bf.System.String())
	return sess, info, nil
}

// PBS is a system provider for PBS batch jobs. Workers are local
// bigmachine processes; the job's CPUs are divided among them, each
// running the configured number of threads. The supported options
// are:
//
//	threads=<number> - threads per worker, default 1.
//	ncpus=<number> - CPUs to use, default $PBS_NCPUS.
type PBS struct {
	threads int
	ncpus   int
}

// Name implements sliceflags.Provider.
func (p *PBS) Name() string {
	return "pbs"
}

// Set implements sliceflags.Provider.
func (p *PBS) Set(v string) error {
	parts := strings.Split(v, "=")
	if len(parts) != 2 {
		return errors.E(errors.Invalid, fmt.Sprintf("pbs: not in key=val format %q", v))
	}
	key, val := parts[0], parts[1]
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("pbs: %s is not a positive integer: %q", key, val))
	}
	switch key {
	case "threads":
		p.threads = n
	case "ncpus":
		p.ncpus = n
	default:
		return errors.E(errors.NotSupported, fmt.Sprintf("pbs: unsupported option %s", key))
	}
	return nil
}

// NCPUs returns the number of CPUs available to the job.
func (p *PBS) NCPUs() int {
	if p.ncpus > 0 {
		return p.ncpus
	}
	if v := os.Getenv(NCPUsEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			return n
		}
		log.Error.Printf("pbs: ignoring %s=%q", NCPUsEnv, v)
	}
	return runtime.GOMAXPROCS(0)
}

func (p *PBS) threadsPerWorker() int {
	if p.threads > 0 {
		return p.threads
	}
	return 1
}

// DefaultParallelism implements sliceflags.Provider.
func (p *PBS) DefaultParallelism() int {
	return p.NCPUs()
}

// ExecOption implements sliceflags.Provider.
func (p *PBS) ExecOption() exec.Option {
	return exec.Bigmachine(&workerSystem{System: bigmachine.Local, procs: p.threadsPerWorker()})
}

// Topology implements Topology.
func (p *PBS) Topology(parallelism int) Info {
	return split(parallelism, p.threadsPerWorker())
}

// workerSystem is a bigmachine system that starts local worker
// processes, each offering procs tasks to the scheduler.
type workerSystem struct {
	bigmachine.System
	procs int
}

func (s *workerSystem) Maxprocs() int {
	return s.procs
}
