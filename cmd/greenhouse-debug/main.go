package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/greenhouse/db"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, deviceID, sensorID, status string
	var percent int
	var value float64
	var seed int64
	flag.StringVar(&dbPath, "db", "data/greenhouse.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: seed, set-device-status, set-fan-speed, record-reading")
	flag.StringVar(&deviceID, "device", "", "Device ID for device commands")
	flag.StringVar(&sensorID, "sensor", "", "Sensor ID for record-reading")
	flag.StringVar(&status, "status", "", "Device status: online, offline, maintenance")
	flag.IntVar(&percent, "percent", 0, "Fan speed percent (0-100)")
	flag.Float64Var(&value, "value", 0, "Sensor reading value")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed for synthetic history")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of greenhouse-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/greenhouse.db')")
		fmt.Println("  -cmd string\tCommand to run: seed, set-device-status, set-fan-speed, record-reading")
		fmt.Println("  -device string\tDevice ID for device commands")
		fmt.Println("  -sensor string\tSensor ID for record-reading")
		fmt.Println("  -status string\tDevice status: online, offline, maintenance")
		fmt.Println("  -percent int\tFan speed percent (0-100)")
		fmt.Println("  -value float\tSensor reading value")
		fmt.Println("  -seed int\tRandom seed for synthetic history")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "seed":
		err = db.SeedCLI(dbPath, seed)
	case "set-device-status":
		if deviceID == "" {
			fmt.Println("Error: device ID is required")
			os.Exit(1)
		}
		err = db.SetDeviceStatusCLI(dbPath, deviceID, status)
	case "set-fan-speed":
		if deviceID == "" {
			fmt.Println("Error: device ID is required")
			os.Exit(1)
		}
		err = db.SetFanSpeedCLI(dbPath, deviceID, percent)
	case "record-reading":
		if sensorID == "" {
			fmt.Println("Error: sensor ID is required")
			os.Exit(1)
		}
		err = db.RecordReadingCLI(dbPath, sensorID, value)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
