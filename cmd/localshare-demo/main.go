// Package main demonstrates wiring the localshare transfer engine
// end-to-end over a loopback TCP connection: one side uploads a file,
// the other accepts it, the sender reports its instant rate, and both
// sides report completion.
//
// This is a wiring example, not a CLI — argument parsing, settings
// persistence, and the windowing layer are external collaborators this
// module does not implement.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"

	"github.com/opd-ai/localshare"
	"github.com/opd-ai/localshare/transfer"
)

func main() {
	tmpDir, err := os.MkdirTemp("", "localshare_demo")
	if err != nil {
		log.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	srcPath := filepath.Join(tmpDir, "source.txt")
	srcData := []byte("Hello from localshare!\nThis is a peer-to-peer file transfer demo.")
	if err := os.WriteFile(srcPath, srcData, 0o644); err != nil {
		log.Fatalf("write source file: %v", err)
	}
	fmt.Printf("Source file: %s (%d bytes)\n\n", srcPath, len(srcData))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	fmt.Printf("Receiver listening on %s\n", listener.Addr())

	downloadDir := filepath.Join(tmpDir, "downloads")
	sender := localshare.NewNode("alice", nil)
	receiver := localshare.NewNode("bob", nil)

	receiverDone := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			receiverDone <- fmt.Errorf("accept: %w", err)
			return
		}
		d := receiver.AcceptDownload(conn)
		d.OnOffer(func(offer transfer.OfferInfo) {
			fmt.Printf("Offer received from %s: %d file(s), %d bytes\n",
				offer.Username, len(offer.Files), offer.TotalSize)
			if err := d.GiveUserChoice(true, downloadDir); err != nil {
				log.Printf("give user choice: %v", err)
			}
		})
		d.OnCompleted(func() { fmt.Println("Receiver: transfer completed") })
		receiverDone <- d.Run(context.Background())
	}()

	u, err := sender.NewUpload(srcPath, false)
	if err != nil {
		log.Fatalf("new upload: %v", err)
	}
	u.OnInstantRate(func(bytesPerSecond float64, _ bool) {
		fmt.Printf("Sender instant rate: %.0f bytes/sec\n", bytesPerSecond)
	})
	u.OnCompleted(func() { fmt.Println("Sender: peer confirmed receipt") })

	if err := u.Connect(listener.Addr().String()); err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := u.Run(context.Background()); err != nil {
		log.Fatalf("upload run: %v", err)
	}
	sender.Untrack(u.ID())

	if err := <-receiverDone; err != nil {
		log.Fatalf("download run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(downloadDir, "source.txt"))
	if err != nil {
		log.Fatalf("read downloaded file: %v", err)
	}
	fmt.Printf("\nDownloaded %d bytes, content matches source: %v\n", len(got), string(got) == string(srcData))
}
