// Command simulate drives a scenario directory through the SEM simulator
// facade and prints energy totals as the clock advances.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/metersim"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s <scenario-dir>\n", flag.CommandLine.Name())
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		log.Fatal("missing scenario directory")
	}
	dir := flag.Arg(0)

	sim, err := metersim.New(dir)
	if err != nil {
		log.Fatalf("unable to create metersim instance: %v", err)
	}
	defer sim.Close()

	if err := sim.CreateRunner(false); err != nil {
		log.Fatalf("unable to create runner: %v", err)
	}

	if err := sim.SetSpeedup(10); err != nil {
		log.Fatalf("unable to set speedup: %v", err)
	}

	log.Printf("phase count: %d", sim.PhaseCount())

	if err := sim.Pause(100); err != nil {
		log.Fatalf("unable to schedule pause: %v", err)
	}
	if err := sim.Resume(); err != nil {
		log.Fatalf("unable to resume: %v", err)
	}

	for i := 0; i < 120; i++ {
		printEnergy(sim)
		time.Sleep(100 * time.Millisecond)
	}

	// The simulation is now paused at t=100, so stepping forward
	// synchronously is allowed.
	if err := sim.StepForward(100); err != nil {
		log.Fatalf("unable to step forward: %v", err)
	}
	printEnergy(sim)
}

func printEnergy(sim *metersim.Simulator) {
	energy := sim.EnergyTotal()
	log.Printf("total energy at time %d, current tariff %d", sim.Uptime(), sim.TariffCurrent())
	printCell(energy)
}

func printCell(e meter.EnergyCell) {
	fmt.Printf(
		"+A  [Ws]:     %d\n"+
			"-A  [Ws]:     %d\n"+
			"+Ri [vars]:   %d\n"+
			"+Rc [vars]:   %d\n"+
			"-Ri [vars]:   %d\n"+
			"-Rc [vars]:   %d\n"+
			"+S  [VAs]:    %d\n"+
			"-S  [VAs]:    %d\n\n",
		e.ActivePlus.Value,
		e.ActiveMinus.Value,
		e.Reactive[0].Value,
		e.Reactive[1].Value,
		e.Reactive[2].Value,
		e.Reactive[3].Value,
		e.ApparentPlus.Value,
		e.ApparentMinus.Value)
}
