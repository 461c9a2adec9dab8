package helpers

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// FakeGraphiteServer accepts plaintext carbon connections and hands back
// each connection's payload.
type FakeGraphiteServer struct {
	Addr     string
	Payloads chan string

	listener net.Listener
	wg       sync.WaitGroup
}

func NewFakeGraphiteServer() *FakeGraphiteServer {
	return &FakeGraphiteServer{
		Addr:     "127.0.0.1:0",
		Payloads: make(chan string, 100),
	}
}

func (s *FakeGraphiteServer) Start() error {
	listener, err := net.Listen("tcp4", s.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.Addr = listener.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				payload, err := io.ReadAll(conn)
				if err == nil {
					s.Payloads <- string(payload)
				}
			}()
		}
	}()

	return nil
}

func (s *FakeGraphiteServer) Stop() {
	s.listener.Close()
	s.wg.Wait()
}

// GetPayload waits for the next connection's payload.
func (s *FakeGraphiteServer) GetPayload() (string, error) {
	select {
	case payload := <-s.Payloads:
		return payload, nil
	case <-time.After(10 * time.Second):
		return "", fmt.Errorf("Timeout waiting for graphite payload")
	}
}
