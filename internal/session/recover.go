package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/timelapse/timelapse/internal/encoder"
	"github.com/timelapse/timelapse/internal/logging"
	"github.com/timelapse/timelapse/internal/store"
)

// EncodeDirectory encodes a session directory left behind by a failed or
// interrupted session, using the settings recorded in its manifest. An empty
// outputPath uses the manifest's output path. On success the directory is
// removed (a removal failure is returned with the result); on failure the
// manifest records the diagnostic and the directory is kept.
func EncodeDirectory(ctx context.Context, dir, outputPath string, enc Encoder, logger *slog.Logger) (*Result, error) {
	logger = logging.OrDiscard(logger)

	m, err := store.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dir, m.ImageExt)
	if err != nil {
		return nil, err
	}
	if outputPath == "" {
		outputPath = m.OutputPath
	}

	logger.Info("encoding preserved session", "session_id", m.SessionID, "dir", dir, "frames", st.FrameCount())
	res, err := enc.Encode(context.WithoutCancel(ctx), encoder.Job{
		Pattern:    st.Pattern(),
		FrameCount: st.FrameCount(),
		FrameRate:  m.FrameRate,
		OutputPath: outputPath,
	})
	if err != nil {
		m.State = StateFailed.String()
		m.Diagnostic = err.Error()
		if werr := st.WriteManifest(m); werr != nil {
			logger.Warn("manifest update failed", "dir", dir, "error", werr)
		}
		return nil, err
	}

	result := &Result{
		SessionID:      m.SessionID,
		OutputPath:     res.OutputPath,
		Size:           res.Size,
		FrameCount:     res.FrameCount,
		VideoSeconds:   float64(res.FrameCount) / float64(m.FrameRate),
		EncodeDuration: res.Duration,
	}
	return result, st.Purge()
}

// DiscardDirectory removes a session directory. It refuses directories
// without a session manifest so that it cannot be pointed at arbitrary data.
func DiscardDirectory(dir string) (*store.Manifest, error) {
	m, err := store.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if err := store.Remove(dir); err != nil {
		return m, fmt.Errorf("failed to discard %s: %w", dir, err)
	}
	return m, nil
}
