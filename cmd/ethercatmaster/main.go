// Command ethercatmaster is a thin demo wiring a mock transport and the
// cyclic driver together, the way the teacher ships small example binaries
// alongside the library rather than a production CLI. It is ambient
// scaffolding (SPEC_FULL.md §4 package layout), not a supported interface:
// ENI/ESI loading, a real transport selection and a production CLI are all
// explicit non-goals of the core (spec.md §1).
package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	ethercat "github.com/samsamfire/ethercat-master"
	"github.com/samsamfire/ethercat-master/diagnostics"
	"github.com/samsamfire/ethercat-master/transport"
)

func main() {
	log.SetLevel(log.InfoLevel)

	mock := transport.NewMock()
	mock.AddSlave(0, 0x00000002, 0x044c2c52) // EL1008
	mock.AddSlave(1, 0x00000002, 0x07d83052) // EL2008

	cfg := ethercat.NetworkConfiguration{
		Slaves: []ethercat.SlaveConfig{
			{Name: "EL1008", Position: 0, VendorId: 0x00000002, ProductCode: 0x044c2c52},
			{Name: "EL2008", Position: 1, VendorId: 0x00000002, ProductCode: 0x07d83052},
		},
		Signals: []ethercat.SignalBinding{
			{Name: "InputA", Direction: ethercat.SignalInput, SlaveName: "EL1008", ByteOffset: 0, BitOffset: 0},
			{Name: "OutputA", Direction: ethercat.SignalOutput, SlaveName: "EL2008", ByteOffset: 0, BitOffset: 0},
		},
		ProcessImageInputBytes:  1,
		ProcessImageOutputBytes: 1,
	}

	metrics := diagnostics.NewMetrics(nil)

	master := ethercat.New(mock, ethercat.Options{
		Recovery: ethercat.RecoveryOptions{Enable: true, MaxRetriesPerSlave: 3, MaxReconfigurePerSlave: 2, MaxEventHistory: 64},
		Metrics:  metrics,
	})

	if err := master.Configure(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "configure:", err)
		os.Exit(1)
	}
	if err := master.OnInputChange("InputA", func(v bool) {
		log.WithField("value", v).Info("InputA changed")
	}); err != nil {
		fmt.Fprintln(os.Stderr, "register callback:", err)
		os.Exit(1)
	}
	if err := master.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}
	defer master.Stop()

	driver := ethercat.NewCyclicDriver(master, ethercat.CyclicDriverOptions{
		Period:                 time.Millisecond,
		StopOnError:            true,
		MaxConsecutiveFailures: 10,
		Report: func(r ethercat.CycleReport) {
			if r.CycleIndex%1000 == 0 {
				log.WithFields(log.Fields{"cycle": r.CycleIndex, "wkc": r.WorkingCounter, "success": r.Success}).Info("cyclic report")
			}
		},
	})

	go func() {
		time.Sleep(5 * time.Second)
		driver.Stop()
	}()
	driver.Run()
}
