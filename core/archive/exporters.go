package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koscakluka/ema-realtime/core/conversations"
)

// DirExporter writes each clip to <Dir>/<item id>.wav.
type DirExporter struct {
	Dir string
}

func (e DirExporter) Export(_ context.Context, itemID string, container []byte) error {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	path := filepath.Join(e.Dir, fileName(itemID)+".wav")
	if err := os.WriteFile(path, container, 0o644); err != nil {
		return fmt.Errorf("failed to write clip %s: %w", itemID, err)
	}
	return nil
}

func fileName(itemID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, itemID)
	if name == "" {
		return "item"
	}
	return name
}

// MultiExporter hands every clip to all of its exporters.
type MultiExporter []conversations.Exporter

func (m MultiExporter) Export(ctx context.Context, itemID string, container []byte) error {
	var errs error
	for _, exporter := range m {
		if exporter == nil {
			continue
		}
		errs = errors.Join(errs, exporter.Export(ctx, itemID, container))
	}
	return errs
}
