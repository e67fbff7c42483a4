package dispatch

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSMTP speaks just enough SMTP for one plain delivery.
func fakeSMTP(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 fake ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				_ = tp.PrintfLine("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				_ = tp.PrintfLine("250 ok")
			case cmd == "DATA":
				_ = tp.PrintfLine("354 go ahead")
				b, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				got <- string(b)
				_ = tp.PrintfLine("250 queued")
			case cmd == "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), got
}

// silentSMTP accepts connections and never answers.
func silentSMTP(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	return ln.Addr().String()
}

func TestSMTPNotifierDelivers(t *testing.T) {
	addr, got := fakeSMTP(t)
	n := NewSMTPNotifier(addr, "orders@shop.test", "", "")

	err := n.Notify(context.Background(), Message{To: "cleo@mail.test", Subject: "Shipped", Body: "on its way"})
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Contains(t, msg, "To: cleo@mail.test")
		assert.Contains(t, msg, "on its way")
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestSMTPNotifierTimesOutOnSilentServer(t *testing.T) {
	n := NewSMTPNotifier(silentSMTP(t), "orders@shop.test", "", "")
	n.Timeout = 100 * time.Millisecond

	start := time.Now()
	err := n.Notify(context.Background(), Message{To: "cleo@mail.test"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPNotifierHonoursContextDeadline(t *testing.T) {
	n := NewSMTPNotifier(silentSMTP(t), "orders@shop.test", "", "")
	n.Timeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := n.Notify(ctx, Message{To: "cleo@mail.test"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
