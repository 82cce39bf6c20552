/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// ptpd is a PTPv2 ordinary-clock endpoint: master or slave on a single
// port, over IPv4/UDP multicast. The BMC decision never selects PASSIVE.
package main

import (
	"flag"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/facebookincubator/ptpd-oc/clock"
	"github.com/facebookincubator/ptpd-oc/port"
	"github.com/facebookincubator/ptpd-oc/ptp"
	"github.com/facebookincubator/ptpd-oc/stats"
	"github.com/facebookincubator/ptpd-oc/transport"
)

type config struct {
	Iface    string `yaml:"iface"`
	LogLevel string `yaml:"loglevel"`

	SlaveOnly bool  `yaml:"slaveonly"`
	Domain    uint  `yaml:"domain"`
	Priority1 uint  `yaml:"priority1"`
	Priority2 uint  `yaml:"priority2"`
	TwoStep   bool  `yaml:"twostep"`

	ClockClass    uint `yaml:"clockclass"`
	ClockAccuracy uint `yaml:"clockaccuracy"`
	ClockVariance uint `yaml:"clockvariance"`

	AnnounceInterval       int  `yaml:"announceinterval"`
	SyncInterval           int  `yaml:"syncinterval"`
	MinDelayReqInterval    int  `yaml:"mindelayreqinterval"`
	AnnounceReceiptTimeout uint `yaml:"announcereceipttimeout"`

	TickRateHz int `yaml:"tickratehz"`
	ClockHz    int `yaml:"clockhz"`

	MonitoringPort int    `yaml:"monitoringport"`
	PprofAddr      string `yaml:"pprofaddr"`
}

func readConfig(path string, c *config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c)
}

func main() {
	c := &config{}
	var cfgPath string

	flag.StringVar(&cfgPath, "config", "", "Path to a yaml config file. Flags given on the command line override its values")
	flag.StringVar(&c.Iface, "iface", "eth0", "Set the interface")
	flag.StringVar(&c.LogLevel, "loglevel", "info", "Set a log level. Can be: debug, info, warning, error")
	flag.BoolVar(&c.SlaveOnly, "slaveonly", false, "Never become master")
	flag.UintVar(&c.Domain, "domain", 0, "PTP domain number")
	flag.UintVar(&c.Priority1, "priority1", 128, "BMC priority1")
	flag.UintVar(&c.Priority2, "priority2", 128, "BMC priority2")
	flag.BoolVar(&c.TwoStep, "twostep", true, "Send Sync plus Follow_Up instead of one-step Sync")
	flag.UintVar(&c.ClockClass, "clockclass", uint(ptp.ClockClassMasterCapable), "Own clockClass (248 master-capable, 255 slave-only)")
	flag.UintVar(&c.ClockAccuracy, "clockaccuracy", uint(ptp.ClockAccuracyUnknown), "Own clockAccuracy")
	flag.UintVar(&c.ClockVariance, "clockvariance", 0xffff, "Own offsetScaledLogVariance")
	flag.IntVar(&c.AnnounceInterval, "announceinterval", 1, "log2 seconds between Announce messages")
	flag.IntVar(&c.SyncInterval, "syncinterval", 0, "log2 seconds between Sync messages")
	flag.IntVar(&c.MinDelayReqInterval, "mindelayreqinterval", 0, "log2 seconds between Delay_Req messages")
	flag.UintVar(&c.AnnounceReceiptTimeout, "announcereceipttimeout", 3, "Announce intervals without an Announce before the master is considered gone")
	flag.IntVar(&c.TickRateHz, "tickratehz", 10, "Protocol tick rate")
	flag.IntVar(&c.ClockHz, "clockhz", 1000, "Software clock counter frequency")
	flag.IntVar(&c.MonitoringPort, "monitoringport", 8888, "Port to run monitoring server on, 0 to disable")
	flag.StringVar(&c.PprofAddr, "pprofaddr", "", "host:port for the pprof to bind")
	flag.Parse()

	if cfgPath != "" {
		if err := readConfig(cfgPath, c); err != nil {
			log.Fatalf("Failed to read config %q: %v", cfgPath, err)
		}
		// second parse so explicit command-line flags win over the file
		flag.Parse()
	}

	switch c.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", c.LogLevel)
	}

	if c.PprofAddr != "" {
		log.Warningf("Starting profiler on %s", c.PprofAddr)
		go func() {
			log.Println(http.ListenAndServe(c.PprofAddr, nil))
		}()
	}

	iface, err := net.InterfaceByName(c.Iface)
	if err != nil {
		log.Fatalf("Interface %q: %v", c.Iface, err)
	}

	jstats := stats.NewJSONStats()
	if c.MonitoringPort != 0 {
		go jstats.Start(c.MonitoringPort)
	}

	clk := clock.NewSoftwareClock(uint64(c.ClockHz))
	clk.TickInit()
	defer clk.Close()

	conn, err := transport.Listen(c.Iface)
	if err != nil {
		log.Fatalf("Failed to bring up transport: %v", err)
	}
	defer conn.Close()

	p, err := port.NewPort(port.Config{
		MAC:       iface.HardwareAddr,
		SlaveOnly: c.SlaveOnly,
		Priority1: uint8(c.Priority1),
		Priority2: uint8(c.Priority2),
		ClockQuality: ptp.ClockQuality{
			ClockClass:              ptp.ClockClass(c.ClockClass),
			ClockAccuracy:           ptp.ClockAccuracy(c.ClockAccuracy),
			OffsetScaledLogVariance: uint16(c.ClockVariance),
		},
		DomainNumber:           uint8(c.Domain),
		LogAnnounceInterval:    int8(c.AnnounceInterval),
		LogSyncInterval:        int8(c.SyncInterval),
		LogMinDelayReqInterval: int8(c.MinDelayReqInterval),
		AnnounceReceiptTimeout: uint8(c.AnnounceReceiptTimeout),
		TwoStep:                c.TwoStep,
		TickHz:                 int64(c.TickRateHz),
	}, clk, conn, jstats.Stats)
	if err != nil {
		log.Fatalf("Failed to initialize port: %v", err)
	}

	conn.Serve()

	// The periodic tick models an ISR: it only sets a flag. All protocol
	// work happens in the super-loop below when the flag is observed.
	var tickPending atomic.Bool
	wake := make(chan struct{}, 1)
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(c.TickRateHz))
		defer ticker.Stop()
		for range ticker.C {
			tickPending.Store(true)
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Infof("ptpd running on %s", c.Iface)
	for {
		select {
		case pkt := <-conn.RX():
			if err := p.HandleMessage(pkt.Data); err != nil {
				log.Debugf("dropped message: %v", err)
			}
		case <-wake:
		case s := <-sig:
			log.Infof("got signal %v, shutting down", s)
			return
		}
		if tickPending.Swap(false) {
			p.Tick()
		}
	}
}
