// Package run runs the actual event aggregator
package run

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/relex/gotils/logger"
	"github.com/relex/xevent-aggregator/defs"
)

// Run runs the aggregator until stopped by signals
func Run(configFile string) {
	loader, loaderErr := NewLoaderFromConfigFile(configFile, "xeventagg_")
	if loaderErr != nil {
		logger.Fatal(loaderErr)
	}

	pipeline, pipelineErr := loader.LaunchPipeline(logger.Root())
	if pipelineErr != nil {
		logger.Fatal(pipelineErr)
	}

	runLogger := logger.WithField(defs.LabelComponent, "Launcher")
	runLogger.Infof("listening on %s", pipeline.Address)

	// wait for shutdown signal
	{
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		s := <-sigChan
		runLogger.Infof("received %s, shutting down", s)
	}

	pipeline.Shutdown()
	runLogger.Info("clean exit")
}
