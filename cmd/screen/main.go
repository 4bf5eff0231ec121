// Command screen replays a JSON-lines order file at the ring's
// current Leader, following it across leadership changes.
package main

import (
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/jabolina/gelato/pkg/gelato/screen"
	"github.com/jabolina/gelato/pkg/gelato/types"
)

// screenConfigPath is the conventional location of this screen's
// configuration file: it supplies the controller-port that seeds the
// initial Leader, plus the id -> port lookup table that resolves
// <screen_id> to the port this screen listens on for NewLeader notices.
const screenConfigPath = "conf/screen.properties"

var (
	app = kingpin.New("screen", "Order producer for the ice-cream ring.")

	ordersPath = app.Arg("orders_path", "path to the newline-delimited JSON orders file to replay").Required().String()
	screenID   = app.Arg("screen_id", "this screen's numeric id, looked up in its config's port mapping").Required().Int()
	pace       = app.Flag("pace", "delay between successive orders").Default("100ms").Duration()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := types.NewDefaultLogger("screen")

	sf, err := os.Open(screenConfigPath)
	if err != nil {
		log.Errorf("opening screen config %s: %v", screenConfigPath, err)
		os.Exit(1)
	}
	screenCfg, err := types.ParseScreenConfig(sf)
	sf.Close()
	if err != nil {
		log.Errorf("parsing screen config: %v", err)
		os.Exit(1)
	}

	screenPort, ok := screenCfg.PortOf(*screenID)
	if !ok {
		log.Errorf("screen id %d not found in %s", *screenID, screenConfigPath)
		os.Exit(1)
	}

	s := screen.New(*screenID, screenPort, screenCfg.ControllerPort, log)
	if err := s.Start(); err != nil {
		log.Errorf("starting screen %d controller on %d: %v", *screenID, screenPort, err)
		os.Exit(1)
	}

	log.Infof("screen %d up, replaying %s", *screenID, *ordersPath)
	if err := s.Replay(*ordersPath, *pace); err != nil {
		log.Errorf("replaying orders: %v", err)
		os.Exit(1)
	}

	time.Sleep(time.Second)
}
