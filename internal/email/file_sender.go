package email

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileEmailSender appends every outgoing message to a local log file
// (LOG_EMAILS), which is how enquiry notifications are inspected in
// development.
type FileEmailSender struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileEmailSender creates the log file's directory if needed.
func NewFileEmailSender(path string) (*FileEmailSender, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("email log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create email log directory: %w", err)
	}
	return &FileEmailSender{path: path, now: time.Now}, nil
}

func (s *FileEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := headerValue(rawMessage, KindHeader)
	if kind == "" {
		kind = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s | %s | to=%s | %s ===\n", s.now().UTC().Format(time.RFC3339), kind, strings.Join(to, ","), subject)
	b.Write(rawMessage)
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("=== end ===\n\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open email log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write email log: %w", err)
	}

	slog.Debug("email logged", "kind", kind, "to", to, "path", s.path)
	return nil
}
