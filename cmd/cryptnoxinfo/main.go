package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/embarquech/cryptnox-host/internal/config"
	"github.com/embarquech/cryptnox-host/pkg/cryptnox"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	readerIndex := flag.Int("reader", 0, "PC/SC reader index")
	pin := flag.String("pin", "", "card PIN (overrides config pin_file)")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	readerSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "reader" {
			readerSet = true
		}
	})

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if !readerSet {
			*readerIndex = *cfg.Runtime.ReaderIndex
		}
		if cfg.Runtime.Verbose != nil && *cfg.Runtime.Verbose {
			*verbose = true
		}
	}

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

	if *pin == "" && cfg != nil {
		p, err := cfg.ReadPIN()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		*pin = p
	}

	transport, err := cryptnox.NewPCSCTransport(*readerIndex)
	if err != nil {
		log.Fatalf("reader: %v", err)
	}
	defer transport.Close()
	slog.Info("reader connected", "name", transport.Reader())

	channel := cryptnox.NewSecureChannel(transport)
	if *verbose {
		channel.SetSink(cryptnox.SlogSink{})
	}

	if err := channel.Connect(); err != nil {
		if errors.Is(err, cryptnox.ErrCardNotSupported) {
			// Not a wallet card; fall back to printing the UID the way
			// plain NFC tags are identified.
			if uid, uidErr := cryptnox.GetUID(transport); uidErr == nil {
				fmt.Printf("Card UID: % X\n", uid)
				return
			}
		}
		log.Fatalf("connect: %v", err)
	}
	defer channel.Disconnect()

	slog.Info("secure channel established")
	if channel.FCI != nil {
		fmt.Print(channel.FCI.Describe())
	}

	if *pin != "" {
		if err := channel.VerifyPIN(*pin); err != nil {
			if tries, ok := cryptnox.PINTriesLeft(err); ok {
				log.Fatalf("wrong PIN, %d tries left", tries)
			}
			log.Fatalf("verify PIN: %v", err)
		}
		slog.Info("PIN verified")
	}

	info, err := channel.GetCardInfo()
	if err != nil {
		log.Fatalf("card info: %v", err)
	}
	fmt.Print(info.Describe())
}
