package cmd

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/relex/gotils/logger"
)

// rootCommandState holds the diagnostics flags shared by all subcommands
//
// Each requested artifact registers a stop function in preRun; postRun flushes and
// closes them in reverse start order
type rootCommandState struct {
	CPUProfile string `name:"cpuprofile" help:"Write CPU profile to file."`
	MemProfile string `name:"memprofile" help:"Write memory profile to file."`
	Trace      string `help:"Write trace to file."`

	stopFuncs []func()
}

var rootCmd rootCommandState

func (cmd *rootCommandState) preRun() {
	if cmd.CPUProfile != "" {
		file := createDiagnosticsFile("CPU profile", cmd.CPUProfile)
		if err := pprof.StartCPUProfile(file); err != nil {
			logger.Fatalf("error starting CPU profiling: %s", err.Error())
		}
		cmd.stopFuncs = append(cmd.stopFuncs, func() {
			pprof.StopCPUProfile()
			file.Close()
		})
	}

	if cmd.MemProfile != "" {
		file := createDiagnosticsFile("memory profile", cmd.MemProfile)
		cmd.stopFuncs = append(cmd.stopFuncs, func() {
			runtime.GC()
			if err := pprof.WriteHeapProfile(file); err != nil {
				logger.Errorf("error writing memory profile: %s", err.Error())
			}
			file.Close()
		})
	}

	if cmd.Trace != "" {
		file := createDiagnosticsFile("trace", cmd.Trace)
		if err := trace.Start(file); err != nil {
			logger.Fatalf("error starting tracing: %s", err.Error())
		}
		cmd.stopFuncs = append(cmd.stopFuncs, func() {
			trace.Stop()
			file.Close()
		})
	}
}

func (cmd *rootCommandState) postRun() {
	for i := len(cmd.stopFuncs) - 1; i >= 0; i-- {
		cmd.stopFuncs[i]()
	}
	cmd.stopFuncs = nil
}

func createDiagnosticsFile(kind string, path string) *os.File {
	file, err := os.Create(path)
	if err != nil {
		logger.Fatalf("error creating %s file %s: %s", kind, path, err.Error())
	}
	logger.Infof("writing %s to %s", kind, path)
	return file
}
