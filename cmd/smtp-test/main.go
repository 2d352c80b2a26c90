// Command smtp-test verifies the SMTP accounts in a config file by dialing
// and authenticating with each one, without sending any mail.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mailforge/bulksender/internal/config"
	"github.com/mailforge/bulksender/internal/mailing"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Accounts) == 0 {
		fmt.Fprintln(os.Stderr, "no accounts configured")
		os.Exit(1)
	}

	mailer := mailing.NewSMTPMailer()
	failed := 0
	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		fmt.Printf("%-30s ", acct.Label())
		if err := mailer.TestConnection(acct); err != nil {
			failed++
			fmt.Printf("FAIL  %v\n", err)
			continue
		}
		fmt.Println("OK")
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d accounts failed\n", failed, len(cfg.Accounts))
		os.Exit(1)
	}
	fmt.Printf("\nall %d accounts verified\n", len(cfg.Accounts))
}
