package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"proxyauction/auction"
	"proxyauction/protocol"
	"proxyauction/server"
	"proxyauction/store/memstore"

	"github.com/go-kit/log"
)

func startServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var (
		logger      = log.NewNopLogger()
		handler     = protocol.NewHandler(auction.NewCoreService(memstore.NewStore(), logger), logger)
		s           = server.NewServer(handler, server.Config{IOTimeout: 5 * time.Second})
		ctx, cancel = context.WithCancel(context.Background())
		done        = make(chan struct{})
	)

	go func() {
		defer close(done)
		s.Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return ln.Addr().String()
}

func TestExe(t *testing.T) {
	t.Parallel()

	var (
		addr   = startServer(t)
		stdout bytes.Buffer
		stderr bytes.Buffer
	)

	err := exe(context.Background(), strings.NewReader(""), &stdout, &stderr, []string{
		"-server-addr", addr,
		"-bidders", "3",
		"-seed", "9",
		"-log-level", "error",
	})
	if err != nil {
		t.Fatalf("exe: %v (stderr %s)", err, stderr.String())
	}

	w, err := protocol.ParseWinnerResponse(strings.TrimSpace(stdout.String()))
	if err != nil {
		t.Fatal(err)
	}
	if w.Amount < 100 || w.Amount > 10000 {
		t.Fatalf("winning amount %d out of range", w.Amount)
	}
}

func TestExePrompt(t *testing.T) {
	t.Parallel()

	var (
		addr   = startServer(t)
		stdout bytes.Buffer
	)

	err := exe(context.Background(), strings.NewReader("2\n"), &stdout, &bytes.Buffer{}, []string{
		"-server-addr", addr,
		"-log-level", "error",
	})
	if err != nil {
		t.Fatal(err)
	}

	out := stdout.String()
	if !strings.HasPrefix(out, "Enter the number of bidders: ") {
		t.Fatalf("missing prompt: %q", out)
	}
	if !strings.Contains(out, protocol.RespBidWinner) {
		t.Fatalf("missing winner: %q", out)
	}
}

func TestPromptBidders(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]int{
		"3\n":     3,
		"  12 \n": 12,
		"7":       7,
	} {
		n, err := promptBidders(strings.NewReader(input), &bytes.Buffer{})
		if err != nil {
			t.Errorf("%q: %v", input, err)
			continue
		}
		if n != want {
			t.Errorf("%q: want %d, have %d", input, want, n)
		}
	}

	for _, input := range []string{"", "\n", "zero\n", "0\n", "-4\n"} {
		if _, err := promptBidders(strings.NewReader(input), &bytes.Buffer{}); err == nil {
			t.Errorf("%q: want error, have none", input)
		}
	}
}
