// Command robot runs a single Robot peer: ring leader election, the
// token-ring stock protocol, and (while leading) order dispatch.
package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/jabolina/gelato/pkg/gelato/core"
	"github.com/jabolina/gelato/pkg/gelato/types"
)

// robotConfigPath is the conventional location of the 3-line robot
// configuration file, resolved relative to the working directory the
// binary is launched from. The CLI surface itself is a single
// positional <port>; the config file's path is not part of it.
const robotConfigPath = "conf/properties.conf"

var (
	app  = kingpin.New("robot", "Ice-cream ring peer: election, stock token, order dispatch.")
	port = app.Arg("port", "this peer's listening port, must appear in the config's robot list").Required().Uint16()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := types.NewDefaultLogger("robot")

	f, err := os.Open(robotConfigPath)
	if err != nil {
		log.Errorf("opening config %s: %v", robotConfigPath, err)
		os.Exit(1)
	}
	cfg, err := types.ParseRobotConfig(f)
	f.Close()
	if err != nil {
		log.Errorf("parsing config: %v", err)
		os.Exit(1)
	}

	self := types.Port(*port)
	r := core.NewRobot(self, cfg, log)
	if err := r.Start(cfg.RobotPorts); err != nil {
		log.Errorf("starting robot %d: %v", self, err)
		os.Exit(1)
	}

	log.Infof("robot %d up, leader=%v", self, r.IsLeader())
	select {}
}
