// Command payments runs the Payments gateway: it authorizes or
// declines incoming orders and acknowledges each one once it is settled.
package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/jabolina/gelato/pkg/gelato/gateway"
	"github.com/jabolina/gelato/pkg/gelato/types"
)

// paymentsConfigPath is the conventional location of the single-line
// "port=..." payments configuration file. Payments takes no CLI
// arguments at all, so the path is not configurable from the command
// line.
const paymentsConfigPath = "conf/payments.properties"

var app = kingpin.New("payments", "Order authorization gateway for the ice-cream ring.")

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := types.NewDefaultLogger("payments")

	f, err := os.Open(paymentsConfigPath)
	if err != nil {
		log.Errorf("opening config %s: %v", paymentsConfigPath, err)
		os.Exit(1)
	}
	cfg, err := types.ParsePaymentsConfig(f)
	f.Close()
	if err != nil {
		log.Errorf("parsing config: %v", err)
		os.Exit(1)
	}

	g := gateway.New(cfg.Port, log)
	if err := g.Start(); err != nil {
		log.Errorf("starting payments gateway on %d: %v", cfg.Port, err)
		os.Exit(1)
	}

	log.Infof("payments gateway up on %d", cfg.Port)
	select {}
}
