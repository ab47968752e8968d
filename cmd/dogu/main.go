// Command dogu is a thin demo entrypoint: it wires a dispatcher
// configuration into a host pool, dispatcher and fleet observer, then
// prints the pool's current fleet snapshot. It exists to exercise the
// wiring, not as a production job-queue frontend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/netresearch/dogu/blacklist"
	"github.com/netresearch/dogu/circuit"
	"github.com/netresearch/dogu/daemon"
	"github.com/netresearch/dogu/dispatcher"
	"github.com/netresearch/dogu/dispatchconfig"
	"github.com/netresearch/dogu/execution"
	"github.com/netresearch/dogu/fleet"
	"github.com/netresearch/dogu/hostpool"
	"github.com/netresearch/dogu/logging"
	"github.com/netresearch/dogu/metrics"
)

func main() {
	configFile := flag.String("config", "", "path to an INI config file with a [docker] section")
	blacklistFile := flag.String("blacklist-db", "", "path to a bbolt database file for the host blacklist (in-memory if empty)")
	flag.Parse()

	logger := logging.NewLogrusAdapter(logrus.StandardLogger())

	cfg, err := dispatchconfig.Load(*configFile)
	if err != nil {
		logger.Criticalf("load config: %v", err)
		os.Exit(1)
	}

	circuits := circuit.NewRegistry(circuit.Config{
		MaxFailures:  cfg.CircuitMaxFails,
		ResetTimeout: cfg.CircuitResetTimeout,
	})

	factory := func(host string, port int) (daemon.Client, error) {
		return daemon.NewFsouzaClient(hostpool.JoinHostID(host, port), cfg.Timeout)
	}

	pool, err := hostpool.New(cfg.Partitions, factory, circuits, logger)
	if err != nil {
		logger.Criticalf("build host pool: %v", err)
		os.Exit(1)
	}

	bl, err := openBlacklist(*blacklistFile)
	if err != nil {
		logger.Criticalf("open blacklist store: %v", err)
		os.Exit(1)
	}

	recorder := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	disp := dispatcher.New(pool, circuits, bl, logger, recorder)

	// A demo execution record with a generated ID, standing in for one
	// the job scheduler would normally hand the dispatcher.
	exampleExecution := execution.NewWithGeneratedID("demo-task", "demo-job")
	logger.Debugf("demo execution id: %s", exampleExecution.ExecutionID)

	observer := fleet.New(pool, circuits)
	blset, err := disp.GetBlacklistedHosts()
	if err != nil {
		logger.Criticalf("read blacklist: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot := observer.GetRunningContainers(ctx, blset)
	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		logger.Criticalf("marshal snapshot: %v", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func openBlacklist(path string) (blacklist.Store, error) {
	if path == "" {
		return blacklist.NewMemStore(), nil
	}
	return blacklist.NewBoltStore(path)
}
