package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// EncryptedTarget age-encrypts every file before handing it to the wrapped
// target. Exported names gain a ".age" suffix.
type EncryptedTarget struct {
	inner      Target
	recipients []age.Recipient
}

var _ Target = (*EncryptedTarget)(nil)

// NewEncryptedTarget parses recipients (age public keys, one per entry).
func NewEncryptedTarget(inner Target, recipients []string) (*EncryptedTarget, error) {
	parsed, err := age.ParseRecipients(strings.NewReader(strings.Join(recipients, "\n")))
	if err != nil {
		return nil, fmt.Errorf("parsing age recipients: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("no age recipients configured")
	}
	return &EncryptedTarget{inner: inner, recipients: parsed}, nil
}

func (t *EncryptedTarget) Put(ctx context.Context, name string, r io.Reader, _ int64) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(t.encrypt(pw, r))
	}()

	err := t.inner.Put(ctx, name+".age", pr, -1)
	// Unblock the encrypting goroutine if the inner target gave up early.
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}

func (t *EncryptedTarget) encrypt(w io.Writer, r io.Reader) error {
	encWriter, err := age.Encrypt(w, t.recipients...)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

func (t *EncryptedTarget) Describe() string {
	return t.inner.Describe() + " (age)"
}
