package logfilewriter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/llmspell/spellkernel/src/kernel/internal/connectionfile"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	_fmtOutputKey = "output:%s"
	_logsDirName  = "spellkernel"
)

// Params define the dependencies for SetupOutputWriter.
type Params struct {
	FS             fs.KernelFS
	Lifecycle      fx.Lifecycle
	ConnectionFile connectionfile.ConnectionFile
}

// OutputWriter collects output that is produced outside any execution, such as writes from goroutines a
// script left running. Nothing is listening for it on iopub, so it goes to a temporary log file instead.
type OutputWriter struct {
	logger *zap.SugaredLogger
	path   string
}

// SetupOutputWriter creates an OutputWriter backed by a temporary file. The file path is recorded in the
// connection file so that a client can tail it.
func SetupOutputWriter(p Params, name string) (*OutputWriter, error) {
	logsDirPath := filepath.Join(os.TempDir(), _logsDirName, name)
	if err := p.FS.MkdirAll(logsDirPath); err != nil {
		return nil, err
	}

	logFile, err := p.FS.TempFile(logsDirPath, "")
	if err != nil {
		return nil, err
	}

	if err := p.ConnectionFile.UpdateField(fmt.Sprintf(_fmtOutputKey, name), logFile.Name()); err != nil {
		logFile.Close()
		return nil, err
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(logFile),
		zap.InfoLevel,
	)
	strayLogger := zap.New(core).Sugar()

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			strayLogger.Sync()
			logFile.Close()
			return p.FS.Remove(logFile.Name())
		},
	})

	return &OutputWriter{logger: strayLogger, path: logFile.Name()}, nil
}

// Path is the file the output is written to.
func (w *OutputWriter) Path() string {
	return w.path
}

// Stream returns a writer tagging each line with the session and stream it came from.
func (w *OutputWriter) Stream(sessionID, stream string) io.Writer {
	return &loggerWriter{logger: w.logger.With("session", sessionID, "stream", stream)}
}

type loggerWriter struct {
	logger *zap.SugaredLogger
}

// Write logs each non-empty line of p.
func (o *loggerWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if len(line) > 0 {
			o.logger.Info(line)
		}
	}
	return len(p), nil
}
