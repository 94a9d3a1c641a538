// Command plrecv binds a local address and writes every byte delivered
// over perfectlink to stdout.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/eenblam/perfectlink/receiver"
	"github.com/eenblam/perfectlink/transport"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:4321", "local address to bind")
	flag.Parse()

	h, err := receiver.Bind(transport.NewTCPBinder(), *addr)
	if err != nil {
		log.Fatalf("plrecv: bind failed: %s", err)
	}
	log.Printf("plrecv: listening on %s", *addr)

	err = h.Serve(func(seq, data byte) {
		os.Stdout.Write([]byte{data})
	})
	log.Fatalf("plrecv: server stopped: %s", err)
}
