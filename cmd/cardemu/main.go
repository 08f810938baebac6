// Command cardemu runs the full secure channel against the in-process
// software card: handshake, PIN verification and card info, without any
// reader hardware. Useful for protocol diagnostics and demos.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/embarquech/cryptnox-host/pkg/cryptnox"
)

func main() {
	cardPIN := flag.String("card-pin", "1234", "PIN provisioned on the simulated card")
	pin := flag.String("pin", "1234", "PIN the host presents")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	card := cryptnox.NewCardSimulator(*cardPIN)
	channel := cryptnox.NewSecureChannel(card)
	channel.SetSink(cryptnox.SlogSink{})

	if err := channel.Connect(); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer channel.Disconnect()
	slog.Info("secure channel established", "state", channel.State().String())

	if err := channel.VerifyPIN(*pin); err != nil {
		if tries, ok := cryptnox.PINTriesLeft(err); ok {
			log.Fatalf("wrong PIN, %d tries left", tries)
		}
		log.Fatalf("verify PIN: %v", err)
	}
	slog.Info("PIN verified")

	info, err := channel.GetCardInfo()
	if err != nil {
		log.Fatalf("card info: %v", err)
	}
	fmt.Print(info.Describe())
}
