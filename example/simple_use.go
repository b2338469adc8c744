package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/enginedriver/internal/logger"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"github.com/leandrodaf/enginedriver/sdk/engine"
)

func main() {
	log := logger.NewZapLogger()
	defer engine.Shutdown()

	fmt.Println("Available audio drivers:", engine.DriverNames())

	e, err := engine.NewEngine("Dummy",
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithBufferSize(256),
		contracts.WithSampleRate(48000),
		contracts.WithHostObserver(contracts.ObserverFunc(func(n contracts.Notification) {
			log.Info("Engine notification",
				log.Field().String("opcode", n.Opcode.String()),
				log.Field().Int("value1", n.Value1),
				log.Field().String("valueStr", n.ValueStr),
			)
		})),
	)
	if err != nil {
		log.Error("Failed to create engine", log.Field().Error("error", err))
		return
	}

	if err := e.Init("simple-use"); err != nil {
		log.Error("Failed to start engine", log.Field().Error("error", err), log.Field().String("lastError", e.LastError()))
		return
	}
	defer e.Close()

	fmt.Printf("Rendering %d frames at %.0f Hz on %s. Press Ctrl+C to exit.\n", e.BufferSize(), e.SampleRate(), e.DriverName())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
}
