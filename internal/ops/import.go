package ops

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

// MaxImportBytes bounds the size of an imported snapshot file.
const MaxImportBytes = 64 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Path     string `json:"path"`
	Chunks   int    `json:"chunks"`
	Tick     int64  `json:"tick"`
	Archived int    `json:"archived_events"`
}

// Import replaces the session's state with a snapshot file. The file is fully
// validated before anything changes. The session is not committed.
func Import(ctx context.Context, s *Session, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, s.Config); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrValidation) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImportBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if len(data) > MaxImportBytes {
		return nil, errors.NewValidationf("import file exceeds %d bytes", MaxImportBytes)
	}

	if _, err := memory.Load(data); err != nil {
		return nil, err
	}

	_, archived, err := s.archiveEvents()
	if err != nil {
		return nil, err
	}
	if err := s.Manager.Restore(data); err != nil {
		return nil, err
	}

	st := s.Manager.Stats()
	s.Logger.Info("snapshot imported", zap.String("path", input.Path), zap.Int("chunks", st.Count))
	return &ImportOutput{
		Path:     input.Path,
		Chunks:   st.Count,
		Tick:     st.Tick,
		Archived: archived,
	}, nil
}
