package main

import (
	"fmt"
	"os"
)

func main() {
	command := "demo"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "demo":
		demoCommand()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cryptexq - secure message envelope demo

USAGE:
    cryptexq [command]

COMMANDS:
    demo      Run the alice/bob envelope scenario (default)
    help      Show this help message

CONFIGURATION (environment, .env supported):
    INTEGRITY_SECRET    required, raw HMAC secret
    KEY_EXCHANGE_MODE   classical_dh | hybrid_pqc | qkd_simulated
    REPLAY_WINDOW_MS    replay acceptance window (default 300000)
    REPLAY_SKEW_MS      future clock skew tolerance (default 60000)
    QKD_NOISE_RATE      simulated channel noise (default 0.02)
    LOG_LEVEL           debug | info | warn | error`)
}
