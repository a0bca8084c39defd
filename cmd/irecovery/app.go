package main

import (
	"fmt"
	"os"

	"github.com/chronicdev/go-irecovery/pkg/irecv"
)

// session bundles a client with the backend that owns its USB context.
type session struct {
	client  *irecv.Client
	backend *irecv.USBBackend
}

func openSession() (*session, error) {
	backend, err := irecv.NewUSBBackend()
	if err != nil {
		return nil, err
	}
	client, err := irecv.OpenAttempts(backend, openTries)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("no device in a recognized boot mode: %w", err)
	}
	return &session{client: client, backend: backend}, nil
}

func (s *session) Close() {
	s.client.Close()
	s.backend.Close()
}

// printReceived subscribes a received handler that mirrors console
// output to stdout.
func (s *session) printReceived() {
	s.client.Subscribe(irecv.EventReceived, func(_ *irecv.Client, ev *irecv.Event) int {
		os.Stdout.Write(ev.Data)
		return 0
	})
}
