// Command plsend dials a remote perfectlink receiver and streams stdin
// through it one byte at a time.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"

	"github.com/eenblam/perfectlink/sender"
	"github.com/eenblam/perfectlink/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4321", "address of the receiver to dial")
	flag.Parse()

	s := sender.New(*addr, transport.NewTCPDialer())

	r := bufio.NewReader(os.Stdin)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b == 0 {
			log.Printf("plsend: skipping reserved payload byte 0")
			continue
		}
		if err := s.Send(b); err != nil {
			log.Fatalf("plsend: send failed: %s", err)
		}
	}
}
