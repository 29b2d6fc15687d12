// sangen is an example telemetry generator: it connects to a collector,
// emits periodic system logs and a demo UVE, and serves introspect.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"encoding/xml"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NVIDIA/sandesh"
	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/discovery"
	"github.com/NVIDIA/sandesh/nlog"
	"github.com/NVIDIA/sandesh/uve"

	"github.com/spf13/cobra"
)

var (
	collectors     []string
	collectorsFile string
	httpPort       int
	module         string
	instanceID     string
	logLevel       string
	interval       time.Duration
)

type demoLog struct {
	XMLName xml.Name `xml:"DemoLog"`
	What    string   `xml:"what"`
	Count   int      `xml:"count"`
}

func (d *demoLog) SandeshName() string      { return "DemoLog" }
func (d *demoLog) Marshal() ([]byte, error) { return xml.Marshal(d) }

func main() {
	root := &cobra.Command{
		Use:   "sangen",
		Short: "example sandesh telemetry generator",
		RunE:  run,
	}
	flags := root.Flags()
	flags.StringSliceVar(&collectors, "collectors", nil, "collector endpoints, primary first")
	flags.StringVar(&collectorsFile, "collectors-file", "", "watched YAML collector list")
	flags.IntVar(&httpPort, "http-port", 0, "introspect port (0 picks one)")
	flags.StringVar(&module, "module", "sangen", "module id")
	flags.StringVar(&instanceID, "instance-id", "0", "instance id")
	flags.StringVar(&logLevel, "log-level", "SYS_INFO", "local logging level")
	flags.DurationVar(&interval, "interval", 10*time.Second, "demo message interval")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	hostname, err := os.Hostname()
	if err != nil {
		return err
	}
	g := sandesh.InitGenerator(sandesh.Options{
		Module:             module,
		Source:             hostname,
		NodeType:           "Test",
		InstanceID:         instanceID,
		Collectors:         collectors,
		HTTPPort:           httpPort,
		ConnectToCollector: len(collectors) > 0 || collectorsFile != "",
		Packages: []sandesh.TypePackage{{
			Name: "demo",
			UVETypes: []uve.TypeDesc{
				{Name: "DemoUVE", Merge: uve.MergeDynamic},
			},
		}},
	})
	defer g.Uninit()

	g.SetLoggingParams(nlog.Params{
		EnableLocal: true,
		Level:       cmn.ParseLevel(logLevel),
	})
	g.TraceBufferCreate("DemoTrace", 64, true)

	if collectorsFile != "" {
		w, err := discovery.Watch(collectorsFile, g.ReconfigCollectors)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	tick := time.NewTicker(interval)
	defer tick.Stop()

	count := 0
	for {
		select {
		case <-tick.C:
			count++
			msg := &demoLog{What: "tick", Count: count}
			g.SendSystem(cmn.LevelInfo, "demo", msg)
			g.TraceMsg("DemoTrace", msg)
			g.SendDynamicUVE("DemoUVE", &uve.DynamicData{
				Name: hostname,
				Elements: []uve.DynamicElem{
					{Key: "ticks", Value: fmt.Sprint(count)},
				},
			})
		case <-stop:
			return nil
		}
	}
}
