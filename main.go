package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"beatpulse/cmd"
	"beatpulse/internal/build"
	"beatpulse/internal/capture"
	"beatpulse/internal/emit"
	applog "beatpulse/internal/log"
	"beatpulse/internal/pipeline"
	"beatpulse/internal/transport"
	"beatpulse/internal/transport/midi"
	"beatpulse/internal/transport/monitor"
	"beatpulse/internal/transport/osc"
)

// main is the entry point for the beat/tempo estimation service. The
// program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Initialize PortAudio
//   - Parse command line arguments
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Prepare and start the pipeline's worker loop
//   - Start the capture stream (triggers the driver's callback thread)
//   - Start the emitter ticker and its publish sinks
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop capture, then the worker, then the emitter, in that order
//   - Close every publish sink
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}

	// Three real-time threads (capture callback, worker, emitter) plus
	// Go's own runtime bookkeeping; leave room for all of them.
	runtime.GOMAXPROCS(4)

	if err := capture.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer capture.Terminate()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if cfg.Verbose {
		applog.SetLevel(applog.LevelDebug)
	}

	if cfg.Command == "list" {
		if err := executeCommand(cfg.Command); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if !cfg.Run {
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	engine := pipeline.New(cfg)
	bridge := capture.NewBridge(engine.Ring(), engine.Clock())

	stream, err := capture.NewStream(cfg, bridge)
	if err != nil {
		applog.Fatalf("%v", err)
	}

	engine.Prepare(cfg.SampleRate)
	engine.StartWorker()

	// CRITICAL: Start of real-time audio processing. The first call to
	// Start triggers PortAudio to begin calling the capture callback,
	// marking the start of the hot path.
	if err := stream.Start(); err != nil {
		applog.Fatalf("%v", err)
	}

	sinks := emit.Sinks{}

	eventPublisher, err := osc.NewPublisher(cfg.EventAddress)
	if err != nil {
		applog.Errorf("main: event transport unavailable: %v", err)
	} else {
		sinks.Event = eventPublisher
		defer eventPublisher.Close()
	}

	sinks.Monitor = monitor.NewBroadcaster(cfg.MonitorAddr)
	defer sinks.Monitor.Close()

	var midiController *midi.Controller
	if cfg.MIDIEnabled {
		midiController, err = midi.New(cfg.MIDIOutPortName)
		if err != nil {
			applog.Errorf("main: MIDI transport unavailable: %v", err)
		} else {
			sinks.MIDI = midiController
			defer midiController.Close()
		}
	}

	if cfg.Verbose {
		debugTransport := transport.NewLoggingTransport()
		sinks.Debug = debugTransport
		defer debugTransport.Close()
	}

	loop := emit.New(engine, engine.Clock(), cfg.SampleRate, sinks)
	loop.Start(cfg.EmitHz)

	fmt.Printf("%s: capturing from %q, events on %s, monitor on %s\n",
		build.GetBuildFlags().Name, stream.DeviceName(), cfg.EventAddress, cfg.MonitorAddr)

	// Block until termination signal is received.
	<-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	//
	// Ordering per the concurrency model: capture stopped first, then the
	// worker is drained and joined, then the emitter stops.

	if err := stream.Stop(); err != nil {
		applog.Errorf("main: error stopping capture stream: %v", err)
	}
	engine.StopWorker()
	loop.Stop()

	if overruns := bridge.Overruns(); overruns > 0 {
		applog.Warnf("main: %d capture packets dropped to ring overrun", overruns)
	}
}

// executeCommand handles one-off commands that don't require the
// pipeline to be running, such as listing available devices.
func executeCommand(command string) error {
	switch command {
	case "list":
		return listDevices()
	default:
		return fmt.Errorf("main: unknown command %q", command)
	}
}

func listDevices() error {
	devices, err := capture.ListDevices()
	if err != nil {
		return err
	}
	fmt.Println("Audio devices:")
	for _, d := range devices {
		fmt.Printf("  [%d] %-32s in=%d out=%d default_sr=%.0f\n",
			d.ID, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}

	outputs, err := midi.ListOutputs()
	if err != nil {
		applog.Warnf("main: failed to list MIDI outputs: %v", err)
		return nil
	}
	fmt.Println("MIDI outputs:")
	for _, name := range outputs {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
