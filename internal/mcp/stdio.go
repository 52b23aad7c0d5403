// ABOUTME: Newline-delimited JSON-RPC over stdin/stdout, the transport MCP hosts spawn
// ABOUTME: Requests run concurrently; responses are written whole under one lock

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ServeStdio reads one JSON-RPC message per line from in and writes
// replies to out until in reaches EOF or ctx is cancelled. It waits for
// in-flight requests before returning.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &lineWriter{out: out}
	lines := make(chan stdioLine)
	readErr := make(chan error, 1)

	go func() {
		reader := bufio.NewReaderSize(in, 64*1024)
		for {
			raw, tooLong, err := readLine(reader, MaxRequestBodySize)
			line := bytes.TrimSpace(raw)
			if tooLong || len(line) > 0 {
				select {
				case lines <- stdioLine{msg: line, tooLong: tooLong}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	s.logger.Info("serving MCP over stdio")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading stdin: %w", err)
			}
			s.logger.Info("stdin closed")
			return nil
		case line := <-lines:
			if line.tooLong {
				s.logger.Warn("MCP message exceeds size limit, discarded", "limit", MaxRequestBodySize)
				if err := w.write(errorResponse(nil, JSONRPCInvalidRequest, "message too large", nil)); err != nil {
					s.logger.Warn("failed to write MCP response", "error", err)
				}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := s.Handle(ctx, line.msg); resp != nil {
					if err := w.write(resp); err != nil {
						s.logger.Warn("failed to write MCP response", "error", err)
					}
				}
			}()
		}
	}
}

type stdioLine struct {
	msg     []byte
	tooLong bool
}

// readLine returns the next line including its newline. A line longer
// than limit is read to its end and dropped, and tooLong is set.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(bytes.TrimRight(line, "\r\n"))+len(bytes.TrimRight(chunk, "\r\n")) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.out.Write(b)
	return err
}
