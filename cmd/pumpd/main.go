// Minimed: Medtronic MiniMed pump driver over a CC1111 USB radio stick
// Copyright (C) 2026  David Leclerc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"minimed/internal/config"
	"minimed/internal/pump"
	"minimed/internal/server"
	"minimed/internal/stick"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides PUMPD_ADDR)")
	scan := flag.Bool("scan", false, "scan the regional band for the best frequency at startup")
	noTune := flag.Bool("no-tune", false, "skip tuning the radio at startup")
	flag.Parse()

	cfg := config.MustLoad()
	serial, err := cfg.SerialBytes()
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	band, err := stick.BandByName(cfg.Region)
	if err != nil {
		log.Fatal(err)
	}

	s, err := stick.Open()
	if err != nil {
		log.Fatalf("open stick: %v", err)
	}
	defer s.Close()

	p := pump.New(s, serial)

	switch {
	case *scan:
		best, err := p.Scan(pump.ScanOptions{F1: band.Min, F2: band.Max})
		if err != nil {
			log.Fatalf("frequency scan: %v", err)
		}
		if err := s.Tune(best); err != nil {
			log.Fatalf("tune: %v", err)
		}
	case !*noTune:
		freq := cfg.Frequency
		if freq == 0 {
			freq = band.Default
		}
		if err := s.Tune(freq); err != nil {
			log.Fatalf("tune: %v", err)
		}
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Printf("shutting down")
		s.Close()
		os.Exit(0)
	}()

	log.Printf("pumpd listening on %s (pump serial %02X%02X%02X)",
		cfg.Addr, serial[0], serial[1], serial[2])
	if err := server.New(s, p).Run(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}
